package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	cmdpkg "github.com/Orion-Gemini/ORION-WEBCAM/internal/commander"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/markdown"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/relay"
)

// HandleMessage answers one incoming message. Init must have been called.
func (b *Bot) HandleMessage(ctx context.Context, msg *cmdpkg.Message) {
	switch {
	case msg.Text != nil:
		text := *msg.Text
		if cmd, ok := b.parseCommand(text); ok {
			b.handleCommand(ctx, msg, cmd)
			return
		}
		if strings.HasPrefix(text, "/") {
			return
		}
		b.handleText(ctx, msg, text)
	case len(msg.Photo) > 0 || msg.Document != nil:
		b.handleFile(ctx, msg)
	}
}

// parseCommand extracts the command name from "/name" or "/name@bot". A
// command addressed to another bot is not ours.
func (b *Bot) parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word, _, _ := strings.Cut(text[1:], " ")
	name, target, addressed := strings.Cut(word, "@")
	if addressed && !strings.EqualFold(target, b.username) {
		return "", false
	}
	switch name {
	case "start", "help", "reset":
		return name, true
	}
	return "", false
}

func (b *Bot) handleCommand(ctx context.Context, msg *cmdpkg.Message, cmd string) {
	b.logger.Info("command", "chat_id", msg.Chat.ID, "command", cmd)
	switch cmd {
	case "start":
		b.reply(ctx, msg, msgStart)
	case "help":
		b.reply(ctx, msg, msgHelp)
	case "reset":
		had, err := b.relay.Reset(ctx, SessionKey(msg.Chat.ID))
		switch {
		case err != nil:
			b.logger.Error("reset failed", "chat_id", msg.Chat.ID, "error", err)
			b.reply(ctx, msg, fmt.Sprintf(msgResetFailed, err))
		case had:
			b.reply(ctx, msg, msgResetDone)
		default:
			b.reply(ctx, msg, msgResetEmpty)
		}
	}
}

// addressed reports whether text may be answered in msg's chat and returns it
// with the bot mention removed. Private chats need no mention.
func (b *Bot) addressed(msg *cmdpkg.Message, text string) (string, bool) {
	if !msg.Chat.IsGroup() {
		return strings.TrimSpace(text), true
	}
	if !b.mention.MatchString(text) {
		return "", false
	}
	return strings.TrimSpace(b.mention.ReplaceAllString(text, "")), true
}

func (b *Bot) handleText(ctx context.Context, msg *cmdpkg.Message, text string) {
	prompt, ok := b.addressed(msg, text)
	if !ok {
		return
	}
	if prompt == "" {
		if msg.Chat.IsGroup() {
			b.reply(ctx, msg, msgMentionHint)
		}
		return
	}

	b.logger.Info("text request", "chat_id", msg.Chat.ID, "prompt_chars", len([]rune(prompt)))
	b.typing(ctx, msg.Chat.ID)
	statusID := b.reply(ctx, msg, msgThinking)

	answer, err := b.relay.Ask(ctx, SessionKey(msg.Chat.ID), relay.Input{Prompt: prompt})
	if err != nil {
		b.logger.Error("text request failed", "chat_id", msg.Chat.ID, "error", err)
		b.fail(ctx, msg, statusID, fmt.Sprintf(msgTextFailed, err))
		return
	}
	b.deliver(ctx, msg, statusID, answer)
}

func (b *Bot) handleFile(ctx context.Context, msg *cmdpkg.Message) {
	var caption string
	if msg.Caption != nil {
		caption = *msg.Caption
	}
	prompt, ok := b.addressed(msg, caption)
	if !ok {
		return
	}

	var fileID, mimeType string
	switch {
	case len(msg.Photo) > 0:
		fileID = msg.Photo[len(msg.Photo)-1].FileID
		mimeType = "image/jpeg"
	case msg.Document != nil:
		if !relay.IsSupportedMIME(msg.Document.MimeType) {
			b.reply(ctx, msg, fmt.Sprintf(msgUnsupported, msg.Document.MimeType))
			return
		}
		fileID = msg.Document.FileID
		mimeType = msg.Document.MimeType
	}

	b.logger.Info("file request", "chat_id", msg.Chat.ID, "mime_type", mimeType)
	b.typing(ctx, msg.Chat.ID)
	statusID := b.reply(ctx, msg, fmt.Sprintf(msgFileLoading, mimeType))

	data, err := b.download(ctx, fileID)
	if err != nil {
		b.logger.Error("file download failed", "chat_id", msg.Chat.ID, "error", err)
		b.fail(ctx, msg, statusID, fmt.Sprintf(msgFileFailed, err))
		return
	}

	b.typing(ctx, msg.Chat.ID)
	if statusID != 0 {
		if err := b.commander.EditMessageText(ctx, msg.Chat.ID, statusID, msgFileAnalyzing, ""); err != nil {
			b.logger.Warn("failed to update status message", "chat_id", msg.Chat.ID, "error", err)
		}
	}

	answer, err := b.relay.Ask(ctx, SessionKey(msg.Chat.ID), relay.Input{
		Prompt:   prompt,
		FileData: base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	})
	if err != nil {
		b.logger.Error("file request failed", "chat_id", msg.Chat.ID, "error", err)
		b.fail(ctx, msg, statusID, fmt.Sprintf(msgFileFailed, err))
		return
	}
	b.deliver(ctx, msg, statusID, answer)
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	f, err := b.commander.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	data, err := b.commander.DownloadFile(ctx, f.FilePath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file %s is empty", fileID)
	}
	return data, nil
}

// deliver shows answer by editing the status message with the escaped text.
// If that fails the escaped text goes out as MarkdownV2 chunks, and if a
// chunk is rejected the raw answer is sent without formatting.
func (b *Bot) deliver(ctx context.Context, msg *cmdpkg.Message, statusID int64, answer string) {
	escaped := markdown.EscapeV2(answer)
	if statusID != 0 {
		err := b.commander.EditMessageText(ctx, msg.Chat.ID, statusID, escaped, cmdpkg.ParseModeMarkdownV2)
		if err == nil {
			return
		}
		b.logger.Warn("MarkdownV2 edit failed, sending chunks", "chat_id", msg.Chat.ID, "error", err)
	}

	for _, chunk := range markdown.Chunk(escaped, ChunkSize) {
		if _, err := b.send(ctx, msg, chunk, cmdpkg.ParseModeMarkdownV2); err != nil {
			b.logger.Warn("MarkdownV2 reply failed, sending plain text", "chat_id", msg.Chat.ID, "error", err)
			for _, plain := range markdown.Chunk(msgFormatFailed+answer, ChunkSize) {
				b.reply(ctx, msg, plain)
			}
			return
		}
	}
}

// fail replaces the status message with text, replying instead when there is
// no status message or it cannot be edited.
func (b *Bot) fail(ctx context.Context, msg *cmdpkg.Message, statusID int64, text string) {
	if statusID != 0 {
		if err := b.commander.EditMessageText(ctx, msg.Chat.ID, statusID, text, ""); err == nil {
			return
		}
	}
	b.reply(ctx, msg, text)
}

func (b *Bot) send(ctx context.Context, msg *cmdpkg.Message, text, parseMode string) (int64, error) {
	return b.commander.SendMessage(ctx, cmdpkg.OutgoingMessage{
		ChatID:    msg.Chat.ID,
		Text:      text,
		ParseMode: parseMode,
		ReplyTo:   msg.MessageID,
	})
}

// reply sends plain text as a reply to msg and returns the new message id, or 0
// when sending failed.
func (b *Bot) reply(ctx context.Context, msg *cmdpkg.Message, text string) int64 {
	id, err := b.send(ctx, msg, text, "")
	if err != nil {
		b.logger.Warn("sendMessage failed", "chat_id", msg.Chat.ID, "error", err)
		return 0
	}
	return id
}

func (b *Bot) typing(ctx context.Context, chatID int64) {
	if err := b.commander.SendChatAction(ctx, chatID, cmdpkg.ActionTyping); err != nil {
		b.logger.Debug("sendChatAction failed", "chat_id", chatID, "error", err)
	}
}
