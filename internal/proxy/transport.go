package proxy

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingTransport logs each round trip's method, host, status and latency.
// Bodies are never logged since they may carry inline file data.
type LoggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

// NewLoggingTransport wraps next; nil next uses http.DefaultTransport.
func NewLoggingTransport(next http.RoundTripper, logger *slog.Logger) *LoggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingTransport{next: next, logger: logger}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.Int64("request_bytes", req.ContentLength),
	}

	resp, err := t.next.RoundTrip(req)
	attrs = append(attrs, slog.Duration("duration", time.Since(start)))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		t.logger.LogAttrs(req.Context(), slog.LevelWarn, "proxy round trip failed", attrs...)
		return nil, err
	}

	attrs = append(attrs, slog.Int("status_code", resp.StatusCode))
	t.logger.LogAttrs(req.Context(), slog.LevelDebug, "proxy round trip", attrs...)
	return resp, nil
}
