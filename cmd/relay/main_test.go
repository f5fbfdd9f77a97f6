package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/db"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/relay"
)

var relayEnvKeys = []string{
	"PROXY_PROVIDER", "GAS_PROXY_URL", "GAS_PROXY_TOKEN", "GEMINI_MODEL",
	"MAX_RETRIES", "RETRY_DELAY_SECONDS", "GEMINI_TIMEOUT_SECONDS", "DUMMY_PROVIDER_SCRIPT",
	"MAX_HISTORY_MESSAGES", "HISTORY_STORE", "HISTORY_DB_PATH", "SESSION_TTL_SECONDS",
	"TG_COMMANDER", "TELEGRAM_TOKEN", "TELEGRAM_API_BASE", "TG_TIMEOUT", "TG_SLEEP_SECONDS",
	"TG_CONCURRENCY", "DUMMY_POLL_SCRIPT", "DUMMY_SEND_SCRIPT", "DUMMY_EDIT_SCRIPT",
	"WEB_ADDR", "WEB_STATIC_DIR", "WEB_MAX_BODY_BYTES", "LOG_LEVEL", "LOG_FORMAT",
}

func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for _, key := range relayEnvKeys {
		t.Setenv(key, "")
	}
	for key, value := range values {
		t.Setenv(key, value)
	}
}

func execute(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "absent.env")))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCmd_ListsSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"bot", "web", "serve", "probe"} {
		assert.True(t, names[want], want)
	}
}

func TestProbe_SendsFullAndMinimalPayloads(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"AI is..."}]}}]}`)
	}))
	defer srv.Close()
	setEnv(t, map[string]string{"GAS_PROXY_URL": srv.URL, "GAS_PROXY_TOKEN": "secret"})

	out, err := execute(context.Background(), t, "probe", "--prompt", "Что такое ИИ?")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Status Code: 200"))
	assert.Contains(t, out, "Answer: AI is...")

	require.Len(t, bodies, 2)
	assert.EqualValues(t, 1024, gjson.Get(bodies[0], "args.generationConfig.maxOutputTokens").Int())
	assert.Equal(t, 4, len(gjson.Get(bodies[0], "args.safetySettings").Array()))
	assert.Equal(t, "Что такое ИИ?", gjson.Get(bodies[0], "args.contents.0.parts.1.text").String())
	assert.False(t, gjson.Get(bodies[1], "args.generationConfig").Exists())
	assert.Equal(t, "gemini-2.5-flash", gjson.Get(bodies[1], "model").String())
}

func TestProbe_FailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()
	setEnv(t, map[string]string{"GAS_PROXY_URL": srv.URL})

	out, err := execute(context.Background(), t, "probe", "--minimal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimal payload")
	assert.Contains(t, out, "Response: upstream down")
	assert.NotContains(t, out, "full payload")
}

func TestBot_RequiresTelegramToken(t *testing.T) {
	setEnv(t, map[string]string{"PROXY_PROVIDER": "dummy"})

	_, err := execute(context.Background(), t, "bot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN")
}

func TestServe_RunsUntilCanceled(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	setEnv(t, map[string]string{
		"PROXY_PROVIDER":    "dummy",
		"TG_COMMANDER":      "dummy",
		"DUMMY_POLL_SCRIPT": "sleep:10",
		"HISTORY_STORE":     "sqlite",
		"HISTORY_DB_PATH":   dbPath,
		"WEB_ADDR":          "127.0.0.1:0",
		"WEB_STATIC_DIR":    dir,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := execute(ctx, t, "serve")
	require.NoError(t, err)

	database, err := db.OpenDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	var n int
	require.NoError(t, database.QueryRow(
		`SELECT COUNT(*) FROM events WHERE event_type = ?`, db.EventProcessStarted,
	).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNewApp_SQLiteStoreRecordsEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	setEnv(t, map[string]string{
		"PROXY_PROVIDER":        "dummy",
		"DUMMY_PROVIDER_SCRIPT": "msg:привет",
		"HISTORY_STORE":         "sqlite",
		"HISTORY_DB_PATH":       dbPath,
	})
	cmd := &cobra.Command{}
	cmd.SetErr(io.Discard)
	cmd.SetContext(context.Background())

	a, err := newApp(cmd, filepath.Join(t.TempDir(), "absent.env"), "web")
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.recorder)
	assert.Nil(t, a.memory)

	answer, err := a.service.Ask(context.Background(), "web:test", relay.Input{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "привет", answer)

	rows, err := a.database.Query(`SELECT event_type FROM events ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	var events []string
	for rows.Next() {
		var e string
		require.NoError(t, rows.Scan(&e))
		events = append(events, e)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{db.EventProcessStarted, db.EventReplySent}, events)
}
