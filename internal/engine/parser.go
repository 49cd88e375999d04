package engine

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Response is what a ResponseParser extracted from user text. Value is
// stored under the waiting step's responseKey; AssistantName is stored
// under args.assistantName when the user also named the bot.
type Response struct {
	Value         string
	AssistantName string
}

// ResponseParser turns freeform user text into the value a wait_for_input
// step stores. Returning ok=false leaves the run waiting for another
// message.
type ResponseParser interface {
	Parse(prompt, text string) (Response, bool)
}

// HeuristicParser is the default ResponseParser. For prompts that ask for a
// name it extracts one from common phrasings like "I am X", "my name is X",
// or a bare "X"; a sentence may also name the bot ("you are Y"). For any
// other prompt the trimmed text is the value.
type HeuristicParser struct{}

var _ ResponseParser = HeuristicParser{}

var (
	reSelfName      = regexp.MustCompile(`(?i)\b(?:my name is|i am|i'm|call me)\s+([A-Za-z][A-Za-z'-]*)`)
	reAssistantName = regexp.MustCompile(`(?i)\byou(?:\s+are|'re)\s+([A-Za-z][A-Za-z'-]*)`)
)

// nameStopwords are single words that look like bare names (capitalized,
// letters only) but are really greetings or acknowledgements.
var nameStopwords = map[string]bool{
	"hello":  true,
	"hi":     true,
	"hey":    true,
	"yo":     true,
	"yes":    true,
	"no":     true,
	"ok":     true,
	"okay":   true,
	"sure":   true,
	"thanks": true,
}

// Parse implements ResponseParser.
func (HeuristicParser) Parse(prompt, text string) (Response, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Response{}, false
	}
	if !promptWantsName(prompt) {
		return Response{Value: trimmed}, true
	}

	var resp Response
	if m := reAssistantName.FindStringSubmatch(trimmed); m != nil {
		resp.AssistantName = m[1]
	}
	if m := reSelfName.FindStringSubmatch(trimmed); m != nil {
		resp.Value = m[1]
		return resp, true
	}
	if name, ok := bareName(trimmed); ok {
		resp.Value = name
		return resp, true
	}
	return Response{}, false
}

// promptWantsName reports whether the prompt is asking the user for a name,
// which switches parsing from "take the whole message" to name extraction.
func promptWantsName(prompt string) bool {
	p := strings.ToLower(prompt)
	return strings.Contains(p, "name") || strings.Contains(p, "call you")
}

// bareName accepts a message that is nothing but a capitalized word, so a
// user can answer "What should I call you?" with just "Morgan". Greetings
// are rejected so "Hello" does not become somebody's name.
func bareName(text string) (string, bool) {
	if strings.ContainsAny(text, " \t\n") {
		return "", false
	}
	trimmed := strings.Trim(text, ".,!?")
	if trimmed == "" {
		return "", false
	}
	first, _ := utf8.DecodeRuneInString(trimmed)
	if !unicode.IsUpper(first) {
		return "", false
	}
	if nameStopwords[strings.ToLower(trimmed)] {
		return "", false
	}
	for _, r := range trimmed {
		if !unicode.IsLetter(r) && r != '\'' && r != '-' {
			return "", false
		}
	}
	return trimmed, true
}
