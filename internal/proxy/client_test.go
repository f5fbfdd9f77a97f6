package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/control"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/conversation"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func answerBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

// scriptedServer replies with the given status/body pairs in order,
// repeating the last one.
func scriptedServer(t *testing.T, replies ...[2]any) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(replies[n][0].(int))
		_, _ = io.WriteString(w, replies[n][1].(string))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(url string, s *sleepRecorder, opts ...Option) *Client {
	p := control.Policy{MaxRetries: 3, RetryDelay: time.Second, RequestTimeout: 2 * time.Second}
	opts = append([]Option{WithSleeper(s.sleep)}, opts...)
	return NewClient(url, "", p, opts...)
}

func contents() []conversation.Turn {
	return conversation.Assemble("hi", "", "", nil)
}

func TestDispatch_SendsEnvelope(t *testing.T) {
	var got Payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, answerBody("Hello!"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &sleepRecorder{}, WithAuthToken("secret"))
	text := c.Dispatch(context.Background(), contents())

	assert.Equal(t, "Hello!", text)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "Bearer secret", auth)
	require.Len(t, got.Args.Contents, 2)
	assert.Equal(t, conversation.SystemTurn(), got.Args.Contents[0])
	assert.Nil(t, got.Args.GenerationConfig)
}

func TestDispatch_InlineDataWireFormat(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, answerBody("ok"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &sleepRecorder{})
	c.Dispatch(context.Background(), conversation.Assemble("describe", "aGk=", "image/png", nil))

	args := raw["args"].(map[string]any)
	turns := args["contents"].([]any)
	current := turns[len(turns)-1].(map[string]any)
	parts := current["parts"].([]any)
	require.Len(t, parts, 2)
	inline := parts[0].(map[string]any)["inlineData"].(map[string]any)
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, "aGk=", inline["data"])
	assert.Equal(t, "describe", parts[1].(map[string]any)["text"])
}

func TestDispatch_RetriesServerErrorsThenSucceeds(t *testing.T) {
	srv, calls := scriptedServer(t,
		[2]any{http.StatusInternalServerError, "boom"},
		[2]any{http.StatusBadGateway, "boom"},
		[2]any{http.StatusOK, answerBody("finally")},
	)
	s := &sleepRecorder{}

	text := newTestClient(srv.URL, s).Dispatch(context.Background(), contents())

	assert.Equal(t, "finally", text)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, time.Second}, s.delays, "fixed delay between attempts")
}

func TestDispatch_ServerErrorOnFinalAttemptIsTerminal(t *testing.T) {
	srv, calls := scriptedServer(t, [2]any{http.StatusServiceUnavailable, "overloaded"})
	s := &sleepRecorder{}

	text := newTestClient(srv.URL, s).Dispatch(context.Background(), contents())

	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
	assert.Len(t, s.delays, 2)
	assert.True(t, strings.HasPrefix(text, "Общая ошибка при запросе к Gemini:"), text)
	assert.Contains(t, text, "503")
}

func TestDispatch_ClientErrorIsNotRetried(t *testing.T) {
	srv, calls := scriptedServer(t, [2]any{http.StatusNotFound, "not here"})
	s := &sleepRecorder{}

	text := newTestClient(srv.URL, s).Dispatch(context.Background(), contents())

	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Empty(t, s.delays)
	assert.True(t, strings.HasPrefix(text, "Общая ошибка при запросе к Gemini:"), text)
	assert.Contains(t, text, "404")
}

func TestDispatch_MissingCandidates(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "error field", body: `{"error":"quota exceeded"}`, want: "quota exceeded"},
		{name: "empty object", body: `{}`, want: MsgNoText},
		{name: "empty candidates", body: `{"candidates":[]}`, want: MsgNoText},
		{name: "empty text falls back to error", body: `{"candidates":[{"content":{"parts":[{"text":""}]}}],"error":"blocked"}`, want: "blocked"},
		{name: "empty error", body: `{"error":""}`, want: MsgNoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := scriptedServer(t, [2]any{http.StatusOK, tt.body})
			text := newTestClient(srv.URL, &sleepRecorder{}).Dispatch(context.Background(), contents())
			assert.Equal(t, tt.want, text)
			assert.EqualValues(t, 1, atomic.LoadInt32(calls))
		})
	}
}

func TestDispatch_MalformedJSONIsTerminal(t *testing.T) {
	srv, calls := scriptedServer(t, [2]any{http.StatusOK, "<html>login</html>"})

	text := newTestClient(srv.URL, &sleepRecorder{}).Dispatch(context.Background(), contents())

	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.True(t, strings.HasPrefix(text, "Общая ошибка при запросе к Gemini:"), text)
}

func TestDispatch_NetworkErrorsExhaustRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	s := &sleepRecorder{}

	text := newTestClient(url, s).Dispatch(context.Background(), contents())

	assert.Len(t, s.delays, 2)
	assert.True(t, strings.HasPrefix(text, "Ошибка сетевого запроса к прокси после 3 попыток:"), text)
}

func TestDispatch_TimeoutIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = io.WriteString(w, answerBody("second try"))
	}))
	defer srv.Close()

	s := &sleepRecorder{}
	c := newTestClient(srv.URL, s, WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	text := c.Dispatch(context.Background(), contents())

	assert.Equal(t, "second try", text)
	assert.Len(t, s.delays, 1)
}

func TestDispatch_InvalidURLIsTerminal(t *testing.T) {
	s := &sleepRecorder{}
	text := newTestClient("://bad url", s).Dispatch(context.Background(), contents())

	assert.Empty(t, s.delays)
	assert.True(t, strings.HasPrefix(text, "Общая ошибка при запросе к Gemini:"), text)
}

func TestDispatch_ZeroRetriesFallsBack(t *testing.T) {
	srv, calls := scriptedServer(t, [2]any{http.StatusOK, answerBody("unused")})
	c := NewClient(srv.URL, "m", control.Policy{}, WithSleeper((&sleepRecorder{}).sleep))

	assert.Equal(t, MsgNoResponse, c.Dispatch(context.Background(), contents()))
	assert.EqualValues(t, 0, atomic.LoadInt32(calls))
	assert.Equal(t, "m", c.Model())
}

func TestDispatch_CanceledContextStopsRetrying(t *testing.T) {
	srv, calls := scriptedServer(t, [2]any{http.StatusInternalServerError, ""})
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(srv.URL, &sleepRecorder{}, WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	text := c.Dispatch(ctx, contents())

	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
	assert.Contains(t, text, "500")
}
