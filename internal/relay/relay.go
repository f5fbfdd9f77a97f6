// Package relay answers chat prompts through the proxy while keeping a short
// per-session history.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/conversation"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/db"
)

// DefaultMaxHistory keeps two user/model exchanges.
const DefaultMaxHistory = 4

// DefaultFilePrompt is used when a file arrives without a question.
const DefaultFilePrompt = "Опиши этот файл и ответь, что на нём изображено, или что в нём содержится."

// SupportedMIMETypes lists the file types the model is asked to analyze.
var SupportedMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"application/pdf",
	"text/plain",
}

// IsSupportedMIME reports whether mimeType is in SupportedMIMETypes.
func IsSupportedMIME(mimeType string) bool {
	for _, m := range SupportedMIMETypes {
		if m == mimeType {
			return true
		}
	}
	return false
}

// Dispatcher sends assembled contents to the model and always returns text.
type Dispatcher interface {
	Dispatch(ctx context.Context, contents []conversation.Turn) string
}

// Recorder receives relay events. db.EventLog satisfies it.
type Recorder interface {
	Record(ctx context.Context, eventType, sessionKey string, payload map[string]any) error
}

// Input is one user request.
type Input struct {
	Prompt   string
	FileData string
	MimeType string
}

// HasFile reports whether the request carries inline file data.
func (in Input) HasFile() bool {
	return in.FileData != "" && in.MimeType != ""
}

// Service is safe for concurrent use across sessions. Requests for the same
// session key must be serialized by the caller.
type Service struct {
	dispatcher Dispatcher
	store      conversation.Store
	maxHistory int
	recorder   Recorder
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMaxHistory caps the stored history at n turns.
func WithMaxHistory(n int) Option {
	return func(s *Service) {
		s.maxHistory = n
	}
}

// WithRecorder records reply and reset events.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithLogger sets the service logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService answers requests with d, keeping history in store.
func NewService(d Dispatcher, store conversation.Store, opts ...Option) *Service {
	s := &Service{
		dispatcher: d,
		store:      store,
		maxHistory: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Ask answers in for the session identified by key.
//
// Text requests continue the stored history, which is then extended with the
// new exchange and trimmed to the configured bound. File requests always
// start a fresh conversation and leave the stored history empty.
func (s *Service) Ask(ctx context.Context, key string, in Input) (string, error) {
	prompt := in.Prompt
	if in.HasFile() && prompt == "" {
		prompt = DefaultFilePrompt
	}

	if in.HasFile() {
		answer := s.dispatcher.Dispatch(ctx, conversation.Assemble(prompt, in.FileData, in.MimeType, nil))
		if err := s.store.Put(ctx, key, nil); err != nil {
			s.logger.Warn("failed to reset history after file request", "session", key, "error", err)
		}
		s.record(ctx, db.EventFileAnalyzed, key, map[string]any{
			"mime_type":    in.MimeType,
			"answer_chars": len([]rune(answer)),
		})
		return answer, nil
	}

	history, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	answer := s.dispatcher.Dispatch(ctx, conversation.Assemble(prompt, "", "", history))

	history = append(history,
		conversation.TextTurn(conversation.RoleUser, prompt),
		conversation.TextTurn(conversation.RoleModel, answer),
	)
	history = conversation.Truncate(history, s.maxHistory)
	if err := s.store.Put(ctx, key, history); err != nil {
		s.logger.Warn("failed to save history", "session", key, "error", err)
	}
	s.record(ctx, db.EventReplySent, key, map[string]any{
		"history_len":  len(history),
		"answer_chars": len([]rune(answer)),
	})
	return answer, nil
}

// Reset clears the history for key and reports whether there was any.
func (s *Service) Reset(ctx context.Context, key string) (bool, error) {
	history, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load history: %w", err)
	}
	if err := s.store.Put(ctx, key, nil); err != nil {
		return false, fmt.Errorf("clear history: %w", err)
	}
	s.record(ctx, db.EventHistoryReset, key, map[string]any{"had_history": len(history) > 0})
	return len(history) > 0, nil
}

func (s *Service) record(ctx context.Context, eventType, key string, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, eventType, key, payload); err != nil {
		s.logger.Warn("failed to record event", "event", eventType, "error", err)
	}
}
