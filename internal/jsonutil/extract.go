package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Models behind OpenAI-compatible endpoints do not reliably emit bare
// JSON: arguments and structured replies arrive wrapped in markdown
// fences, prefixed with prose, or stained with terminal escapes.
// Extract digs the first well-formed object or array out of such text.

// extractLimit caps how much text we will scan. Model output past this
// size is garbage, not JSON.
const extractLimit = 10 << 20

var (
	ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*[mGKHF]`)
	jsonFence   = regexp.MustCompile("(?s)```(?:json)?[ \\t]*\n(.*?)\n```")
)

// Extract returns the first valid JSON object or array in text. A
// fenced block wins over a bare one, since a model that bothered to
// fence its JSON meant that block to be the payload.
func Extract(text string) (json.RawMessage, error) {
	if len(text) > extractLimit {
		return nil, fmt.Errorf("extract json: input exceeds %d bytes", extractLimit)
	}
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")
	text = ansiEscapes.ReplaceAllString(text, "")

	if m := jsonFence.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner), nil
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := closingDelimiter(text, i)
		if end < 0 {
			continue
		}
		if candidate := text[i : end+1]; json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, fmt.Errorf("extract json: no valid object or array in text")
}

// ExtractInto extracts the first JSON value from text and unmarshals
// it into target.
func ExtractInto(text string, target any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("extract json: %w", err)
	}
	return nil
}

// closingDelimiter finds the index of the '}' or ']' that balances the
// opener at start, walking over quoted strings and escapes so braces
// inside string values do not count. Returns -1 when the text ends
// before the structure closes.
func closingDelimiter(text string, start int) int {
	open := text[start]
	var closer byte
	switch open {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return -1
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
