// Package dummy provides scripted stand-ins for the Telegram transport and
// the proxy dispatcher. Scripts are comma-separated actions; the last action
// repeats once the script is exhausted.
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdpkg "github.com/Orion-Gemini/ORION-WEBCAM/internal/commander"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/conversation"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" {
			actions = append(actions, action{kind: "ok"})
			continue
		}
		kind, arg, found := strings.Cut(token, ":")
		switch {
		case found && (kind == "err" || kind == "sleep" || kind == "msg" || kind == "msgb64"):
			actions = append(actions, action{kind: kind, arg: arg})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

func sleepMillis(ctx context.Context, arg string) error {
	ms, _ := strconv.Atoi(arg)
	if ms <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Edit is a recorded editMessageText call.
type Edit struct {
	ChatID    int64
	MessageID int64
	Text      string
	ParseMode string
}

// Commander is a scripted cmdpkg.Commander that records everything sent
// through it. Poll actions: ok, err:<class>, sleep:<ms>, msg:<text>,
// msgb64:<base64 text>. Send and edit actions: ok, err:<class>, sleep:<ms>.
type Commander struct {
	// ChatID and ChatType describe the chat scripted messages arrive in.
	ChatID   int64
	ChatType string
	Username string
	// Files maps file ids to their contents for GetFile/DownloadFile.
	Files map[string][]byte

	mu       sync.Mutex
	poll     *scriptRunner
	send     *scriptRunner
	edit     *scriptRunner
	updateID int64
	msgID    int64
	queued   []cmdpkg.Update
	offsets  []int64
	sent     []cmdpkg.OutgoingMessage
	edits    []Edit
	actions  []string
	commands []cmdpkg.BotCommand
}

var _ cmdpkg.Commander = (*Commander)(nil)

func NewCommander(pollScript, sendScript, editScript string) (*Commander, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	edit, err := newRunner(editScript)
	if err != nil {
		return nil, err
	}
	return &Commander{
		ChatID:   1,
		ChatType: cmdpkg.ChatPrivate,
		Username: "orion_dummy_bot",
		Files:    map[string][]byte{},
		poll:     poll,
		send:     send,
		edit:     edit,
		updateID: 1,
	}, nil
}

// Enqueue makes msg part of the next successful poll.
func (c *Commander) Enqueue(msg cmdpkg.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateID++
	c.msgID++
	if msg.MessageID == 0 {
		msg.MessageID = c.msgID
	}
	if msg.Date == 0 {
		msg.Date = time.Now().Unix()
	}
	c.queued = append(c.queued, cmdpkg.Update{UpdateID: c.updateID, Message: &msg})
}

func (c *Commander) GetUpdates(ctx context.Context, offset int64, timeout int) ([]cmdpkg.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsets = append(c.offsets, offset)
	a := c.poll.next()
	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy commander error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepMillis(ctx, a.arg); err != nil {
			return nil, err
		}
	case "msg":
		c.queueText(a.arg)
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return nil, fmt.Errorf("dummy commander msgb64 decode failed: %w", err)
		}
		c.queueText(string(raw))
	}
	var out []cmdpkg.Update
	for _, u := range c.queued {
		if u.UpdateID >= offset {
			out = append(out, u)
		}
	}
	c.queued = nil
	return out, nil
}

func (c *Commander) queueText(text string) {
	c.updateID++
	c.msgID++
	c.queued = append(c.queued, cmdpkg.Update{
		UpdateID: c.updateID,
		Message: &cmdpkg.Message{
			MessageID: c.msgID,
			Chat:      cmdpkg.Chat{ID: c.ChatID, Type: c.ChatType},
			Text:      &text,
			Date:      time.Now().Unix(),
		},
	})
}

func (c *Commander) GetMe(context.Context) (cmdpkg.User, error) {
	return cmdpkg.User{ID: 1000, IsBot: true, Username: c.Username}, nil
}

func (c *Commander) SendMessage(ctx context.Context, msg cmdpkg.OutgoingMessage) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.send.next()
	switch a.kind {
	case "err":
		return 0, fmt.Errorf("dummy commander send error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepMillis(ctx, a.arg); err != nil {
			return 0, err
		}
	}
	c.sent = append(c.sent, msg)
	c.msgID++
	return c.msgID, nil
}

func (c *Commander) EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.edit.next()
	switch a.kind {
	case "err":
		return fmt.Errorf("dummy commander edit error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepMillis(ctx, a.arg); err != nil {
			return err
		}
	}
	c.edits = append(c.edits, Edit{ChatID: chatID, MessageID: messageID, Text: text, ParseMode: parseMode})
	return nil
}

func (c *Commander) SendChatAction(_ context.Context, _ int64, action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

func (c *Commander) GetFile(_ context.Context, fileID string) (cmdpkg.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Files[fileID]; !ok {
		return cmdpkg.File{}, fmt.Errorf("dummy commander: unknown file %s", fileID)
	}
	return cmdpkg.File{FileID: fileID, FilePath: "files/" + fileID}, nil
}

func (c *Commander) DownloadFile(_ context.Context, filePath string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.Files[strings.TrimPrefix(filePath, "files/")]
	if !ok {
		return nil, fmt.Errorf("dummy commander: no file at %s", filePath)
	}
	return data, nil
}

func (c *Commander) SetMyCommands(_ context.Context, commands []cmdpkg.BotCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append([]cmdpkg.BotCommand(nil), commands...)
	return nil
}

// Sent returns a copy of the messages sent so far.
func (c *Commander) Sent() []cmdpkg.OutgoingMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cmdpkg.OutgoingMessage(nil), c.sent...)
}

func (c *Commander) Edits() []Edit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Edit(nil), c.edits...)
}

func (c *Commander) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

func (c *Commander) Commands() []cmdpkg.BotCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cmdpkg.BotCommand(nil), c.commands...)
}

// Offsets returns the offset passed to each GetUpdates call.
func (c *Commander) Offsets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offsets...)
}

// Dispatcher is a scripted relay dispatcher. Actions: ok, msg:<text>,
// msgb64:<base64 text>, sleep:<ms>, err:<class>. Every action yields text,
// the same way the proxy client never fails outright.
type Dispatcher struct {
	mu     sync.Mutex
	script *scriptRunner
	calls  [][]conversation.Turn
}

func NewDispatcher(script string) (*Dispatcher, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{script: runner}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, contents []conversation.Turn) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, conversation.Clone(contents))

	a := d.script.next()
	switch a.kind {
	case "msg":
		return a.arg
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return fmt.Sprintf("dummy dispatcher msgb64 decode failed: %v", err)
		}
		return string(raw)
	case "err":
		return fmt.Sprintf("dummy dispatcher error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		if err := sleepMillis(ctx, a.arg); err != nil {
			return fmt.Sprintf("dummy dispatcher interrupted: %v", err)
		}
		return "dummy-after-sleep"
	default:
		return emptyAs(a.arg, "dummy-ok")
	}
}

// Calls returns the contents of every Dispatch call so far.
func (d *Dispatcher) Calls() [][]conversation.Turn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]conversation.Turn, len(d.calls))
	for i, c := range d.calls {
		out[i] = conversation.Clone(c)
	}
	return out
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
