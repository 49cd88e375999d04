package prompt

import (
	"math"
	"strings"

	"github.com/ferretbot/ferretbot/internal/session"
)

const (
	// snippetChars bounds each dropped-message snippet in the synthesized
	// summary.
	snippetChars = 80

	// summaryMaxSnippets caps how many dropped messages the summary quotes.
	summaryMaxSnippets = 6

	// summaryMinChars stops the shrink loop; below this the summary says
	// nothing useful anyway.
	summaryMinChars = 16

	// continuationGrowth caps later continuations relative to the last
	// completion, so a model that keeps truncating cannot demand an
	// ever-growing window.
	continuationGrowth = 1.8
)

// Compact trims a continuation transcript to the input budget and derives
// the output target for the next call. continuation is the 1-based index
// of the upcoming continuation round; past the first round the target is
// capped relative to lastCompletionTokens.
//
// Messages are classified before anything is dropped: system and tool
// messages plus the last two are always kept, the most recent eight beyond
// those are kept if possible, and the rest go first. When messages were
// dropped, one synthesized system summary quoting the tail of the dropped
// content is inserted after the last surviving system message, then shrunk
// by 20% per pass until the transcript fits.
func (a *Assembler) Compact(messages []session.Message, continuation, lastCompletionTokens int) ([]session.Message, int) {
	budget := a.InputBudget()
	total := a.estimateMessages(messages)
	if total <= budget {
		return messages, a.continuationTarget(total, continuation, lastCompletionTokens)
	}

	n := len(messages)
	mustKeep := make([]bool, n)
	for i, m := range messages {
		if m.Role == session.RoleSystem || m.Role == session.RoleTool || i >= n-2 {
			mustKeep[i] = true
		}
	}
	keepIfPossible := make([]bool, n)
	kept := 0
	for i := n - 1; i >= 0 && kept < 8; i-- {
		if mustKeep[i] {
			continue
		}
		keepIfPossible[i] = true
		kept++
	}

	drop := make([]bool, n)
	dropClass := func(inClass func(int) bool) {
		for i := 0; i < n && total > budget; i++ {
			if drop[i] || mustKeep[i] || !inClass(i) {
				continue
			}
			drop[i] = true
			total -= a.EstimateTokens(messages[i].Content)
		}
	}
	dropClass(func(i int) bool { return !keepIfPossible[i] })
	dropClass(func(i int) bool { return keepIfPossible[i] })

	var dropped, survivors []session.Message
	for i, m := range messages {
		if drop[i] {
			dropped = append(dropped, m)
		} else {
			survivors = append(survivors, m)
		}
	}
	if len(dropped) == 0 {
		return messages, a.continuationTarget(total, continuation, lastCompletionTokens)
	}
	a.log.Debug("transcript compacted", "dropped", len(dropped), "kept", len(survivors))

	summaryIdx := a.insertSummary(&survivors, dropped)

	// Shrink the summary until the transcript fits or it cannot shrink
	// further.
	for a.estimateMessages(survivors) > budget {
		content := []rune(survivors[summaryIdx].Content)
		if len(content) <= summaryMinChars {
			break
		}
		keep := len(content) * 4 / 5
		if keep < summaryMinChars {
			keep = summaryMinChars
		}
		survivors[summaryIdx].Content = string(content[:keep])
	}

	return survivors, a.continuationTarget(a.estimateMessages(survivors), continuation, lastCompletionTokens)
}

// insertSummary places a synthesized system digest of the dropped messages
// after the last surviving system message and returns its index.
func (a *Assembler) insertSummary(survivors *[]session.Message, dropped []session.Message) int {
	if len(dropped) > summaryMaxSnippets {
		dropped = dropped[len(dropped)-summaryMaxSnippets:]
	}
	snippets := make([]string, 0, len(dropped))
	for _, m := range dropped {
		text := strings.TrimSpace(m.Content)
		if runes := []rune(text); len(runes) > snippetChars {
			text = string(runes[:snippetChars])
		}
		if text != "" {
			snippets = append(snippets, text)
		}
	}
	summary := session.Message{
		Role:    session.RoleSystem,
		Content: "Earlier conversation was compacted. Dropped messages:\n- " + strings.Join(snippets, "\n- "),
	}

	at := 0
	for i, m := range *survivors {
		if m.Role == session.RoleSystem {
			at = i + 1
		}
	}
	out := make([]session.Message, 0, len(*survivors)+1)
	out = append(out, (*survivors)[:at]...)
	out = append(out, summary)
	out = append(out, (*survivors)[at:]...)
	*survivors = out
	return at
}

// continuationTarget is the output window for the next model call.
func (a *Assembler) continuationTarget(usedInput, continuation, lastCompletionTokens int) int {
	target := a.cfg.ContextLimit - usedInput - a.cfg.SafetyBuffer
	if target < 1 {
		target = 1
	}
	if continuation > 1 && lastCompletionTokens > 0 {
		capped := int(math.Ceil(float64(lastCompletionTokens) * continuationGrowth))
		if capped < target {
			target = capped
		}
	}
	return target
}
