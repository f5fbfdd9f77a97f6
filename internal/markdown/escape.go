// Package markdown prepares model output for Telegram's MarkdownV2 renderer.
package markdown

import (
	"regexp"
	"strings"
)

// SpecialChars are the MarkdownV2 control characters escaped outside code blocks.
const SpecialChars = "_*[]()~`>#+-=|{}.!"

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	escaper     = newEscaper(SpecialChars)
)

func newEscaper(chars string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(chars))
	for _, c := range chars {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}

// EscapeV2 backslash-escapes every MarkdownV2 control character in text
// except inside fenced code blocks, which are copied through unchanged in
// their original positions. Escaping is not idempotent: running it twice
// escapes the characters again but leaves the added backslashes alone.
func EscapeV2(text string) string {
	blocks := codeBlockRe.FindAllStringIndex(text, -1)
	if len(blocks) == 0 {
		return escaper.Replace(text)
	}

	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	prev := 0
	for _, loc := range blocks {
		b.WriteString(escaper.Replace(text[prev:loc[0]]))
		b.WriteString(text[loc[0]:loc[1]])
		prev = loc[1]
	}
	b.WriteString(escaper.Replace(text[prev:]))
	return b.String()
}

// Chunk splits text into pieces of at most size runes. A piece never ends
// on an unpaired backslash, so escape sequences stay whole.
func Chunk(text string, size int) []string {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if end-start > 1 && danglingEscape(runes[start:end]) {
			end--
		}
		chunks = append(chunks, string(runes[start:end]))
		start = end
	}
	return chunks
}

// danglingEscape reports whether runes ends in an odd run of backslashes.
func danglingEscape(runes []rune) bool {
	n := 0
	for i := len(runes) - 1; i >= 0 && runes[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}
