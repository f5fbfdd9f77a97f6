// Package bot runs the Telegram front-end: it long-polls for updates and
// answers them through the relay service.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	cmdpkg "github.com/Orion-Gemini/ORION-WEBCAM/internal/commander"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/control"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/db"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/relay"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/telegram"
)

// Asker is the part of relay.Service the bot depends on.
type Asker interface {
	Ask(ctx context.Context, key string, in relay.Input) (string, error)
	Reset(ctx context.Context, key string) (bool, error)
}

type Config struct {
	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int
	// Sleep is the pause after a failed poll.
	Sleep time.Duration
	// Concurrency bounds how many chats are handled at once.
	Concurrency      int
	CircuitThreshold int
	CircuitCooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollTimeout:      30,
		Sleep:            time.Second,
		Concurrency:      8,
		CircuitThreshold: 5,
		CircuitCooldown:  30 * time.Second,
	}
}

type Bot struct {
	commander cmdpkg.Commander
	relay     Asker
	cfg       Config
	circuit   *control.CircuitBreaker
	recorder  relay.Recorder
	logger    *slog.Logger
	sleep     control.Sleeper
	now       func() time.Time

	username string
	mention  *regexp.Regexp
}

type Option func(*Bot)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		b.logger = l
	}
}

func WithRecorder(r relay.Recorder) Option {
	return func(b *Bot) {
		b.recorder = r
	}
}

func WithSleeper(s control.Sleeper) Option {
	return func(b *Bot) {
		b.sleep = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		b.now = now
	}
}

func New(c cmdpkg.Commander, a Asker, cfg Config, opts ...Option) *Bot {
	def := DefaultConfig()
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.Sleep <= 0 {
		cfg.Sleep = def.Sleep
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	b := &Bot{
		commander: c,
		relay:     a,
		cfg:       cfg,
		circuit:   control.NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitCooldown),
		sleep:     control.Sleep,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Init resolves the bot's username and registers the command menu. Run calls
// it before polling.
func (b *Bot) Init(ctx context.Context) error {
	me, err := b.commander.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	if me.Username == "" {
		return errors.New("resolve bot identity: empty username")
	}
	b.username = me.Username
	b.mention = regexp.MustCompile(`(?i)` + regexp.QuoteMeta("@"+me.Username) + `\b`)

	if err := b.commander.SetMyCommands(ctx, Commands); err != nil {
		b.logger.Warn("failed to register bot commands", "error", err)
	}
	return nil
}

// Run polls until ctx is canceled. Updates of one poll are grouped per chat;
// chats are handled concurrently, each chat's messages in order, and the next
// poll starts once the batch is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Init(ctx); err != nil {
		return err
	}
	b.logger.Info("bot running", "username", b.username, "concurrency", b.cfg.Concurrency)

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		wait, probing := b.circuit.Gate(b.now())
		if wait > 0 {
			if err := b.sleep(ctx, wait); err != nil {
				return nil
			}
			continue
		}
		if probing {
			b.record(ctx, db.EventCircuitHalfOpen, map[string]any{"error_class": b.circuit.OpenedClass()})
		}

		updates, err := b.commander.GetUpdates(ctx, offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			errClass := classifyError(err)
			b.logger.Warn("getUpdates failed", "error", err, "error_class", errClass)
			if b.circuit.RecordFailure(errClass, b.now()) {
				b.logger.Error("polling circuit opened", "error_class", errClass, "cooldown", b.circuit.Cooldown)
				b.record(ctx, db.EventCircuitOpened, map[string]any{
					"error_class":      errClass,
					"threshold":        b.circuit.Threshold,
					"cooldown_seconds": int(b.circuit.Cooldown.Seconds()),
				})
			}
			if err := b.sleep(ctx, b.cfg.Sleep); err != nil {
				return nil
			}
			continue
		}
		if b.circuit.RecordSuccess() {
			b.logger.Info("polling circuit closed")
			b.record(ctx, db.EventCircuitClosed, map[string]any{"recovered": true})
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
		b.handleBatch(ctx, updates)
	}
}

func (b *Bot) handleBatch(ctx context.Context, updates []cmdpkg.Update) {
	var order []int64
	byChat := map[int64][]*cmdpkg.Message{}
	for _, u := range updates {
		if u.Message == nil {
			continue
		}
		id := u.Message.Chat.ID
		if _, ok := byChat[id]; !ok {
			order = append(order, id)
		}
		byChat[id] = append(byChat[id], u.Message)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for _, id := range order {
		msgs := byChat[id]
		g.Go(func() error {
			for _, msg := range msgs {
				if gctx.Err() != nil {
					return nil
				}
				b.HandleMessage(gctx, msg)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Bot) record(ctx context.Context, eventType string, payload map[string]any) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder.Record(ctx, eventType, "", payload); err != nil {
		b.logger.Warn("failed to record event", "event", eventType, "error", err)
	}
}

func classifyError(err error) string {
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		return "telegram_api"
	}
	return "command_source"
}

// SessionKey is the relay history key for a Telegram chat.
func SessionKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}
