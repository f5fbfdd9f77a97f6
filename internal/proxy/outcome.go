package proxy

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Replies returned instead of errors.
const (
	MsgNoText     = "Нет текста в ответе."
	MsgNoResponse = "Не удалось получить ответ от модели после всех повторных попыток."

	networkErrorFormat = "Ошибка сетевого запроса к прокси после %d попыток: %v"
	generalErrorFormat = "Общая ошибка при запросе к Gemini: %v"
)

const answerPath = "candidates.0.content.parts.0.text"

// StatusError is a non-success HTTP status from the proxy.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("proxy returned status %d", e.Code)
	}
	return fmt.Sprintf("proxy returned status %d: %s", e.Code, e.Body)
}

// requestError marks failures that happen before anything is sent.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeTerminal
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomeRetryable:
		return "retryable"
	default:
		return "terminal"
	}
}

// outcome is the verdict on a single attempt. text is set for success and
// terminal outcomes; err carries the cause of retryable ones.
type outcome struct {
	kind    outcomeKind
	text    string
	err     error
	network bool
}

// attempt is what one POST produced.
type attempt struct {
	status int
	body   []byte
	err    error
}

// classify decides how the retry loop treats an attempt: server errors and
// transport failures are retryable, every other failure is terminal.
func classify(a attempt) outcome {
	if a.err != nil {
		var reqErr *requestError
		if errors.As(a.err, &reqErr) {
			return terminal(a.err)
		}
		return outcome{kind: outcomeRetryable, err: a.err, network: true}
	}
	if a.status >= 500 {
		return outcome{kind: outcomeRetryable, err: &StatusError{Code: a.status, Body: truncate(string(a.body), 200)}}
	}
	if a.status < 200 || a.status >= 300 {
		return terminal(&StatusError{Code: a.status, Body: truncate(string(a.body), 200)})
	}

	if !gjson.ValidBytes(a.body) {
		return terminal(fmt.Errorf("invalid JSON in proxy response: %s", truncate(string(a.body), 200)))
	}
	doc := gjson.ParseBytes(a.body)
	if !doc.IsObject() {
		return terminal(fmt.Errorf("unexpected proxy response: %s", truncate(string(a.body), 200)))
	}
	return outcome{kind: outcomeSuccess, text: extractAnswer(doc)}
}

// extractAnswer returns the first candidate's first text part, the body's
// error field, or MsgNoText, in that order of preference.
func extractAnswer(doc gjson.Result) string {
	if text := doc.Get(answerPath).String(); text != "" {
		return text
	}
	if e := doc.Get("error"); e.Exists() && e.String() != "" {
		return e.String()
	}
	return MsgNoText
}

// exhausted turns the last retryable outcome into the reply for the caller.
func exhausted(o outcome, attempts int) string {
	if o.network {
		return fmt.Sprintf(networkErrorFormat, attempts, o.err)
	}
	return fmt.Sprintf(generalErrorFormat, o.err)
}

func terminal(err error) outcome {
	return outcome{kind: outcomeTerminal, text: fmt.Sprintf(generalErrorFormat, err), err: err}
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
