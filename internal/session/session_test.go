package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndHistory(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append("s1", Message{Role: RoleUser, Content: "hi"})
	s.Append("s1", Message{Role: RoleAssistant, Content: "hello"})

	got := s.History("s1")
	require.Len(t, got, 2)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "hello", got[1].Content)
}

func TestStore_EmptyIDMapsToDefault(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append("", Message{Role: RoleUser, Content: "hi"})
	assert.Equal(t, 1, s.Len(DefaultID))
}

func TestStore_HistoryReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append("s1", Message{Role: RoleUser, Content: "original"})

	got := s.History("s1")
	got[0].Content = "mutated"

	assert.Equal(t, "original", s.History("s1")[0].Content)
}

func TestStore_Replace(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append("s1", Message{Role: RoleUser, Content: "one"})
	s.Append("s1", Message{Role: RoleUser, Content: "two"})

	s.Replace("s1", []Message{{Role: RoleSystem, Content: "summary"}})

	got := s.History("s1")
	require.Len(t, got, 1)
	assert.Equal(t, "summary", got[0].Content)
}

func TestStore_CollectConversationWithinLimit(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append("s1", Message{Role: RoleUser, Content: "first question"})
	s.Append("s1", Message{Role: RoleAssistant, Content: "first answer"})
	s.Append("s1", Message{Role: RoleUser, Content: "second question"})

	turns, summary := s.CollectConversation("s1", 0)
	require.Len(t, turns, 3, "no limit keeps everything")
	assert.Empty(t, summary)

	// Costs estimate to 4, 3, and 4 tokens oldest-first; an 8-token limit
	// keeps only the newest two turns, still in chronological order.
	turns, _ = s.CollectConversation("s1", 8)
	require.Len(t, turns, 2)
	assert.Equal(t, "first answer", turns[0].Content)
	assert.Equal(t, "second question", turns[1].Content)
}

func TestStore_CollectConversationCarriesSummary(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Replace("s1", []Message{
		{Role: RoleSystem, Content: "earlier talk was about deployment"},
		{Role: RoleUser, Content: "and now?"},
		{Role: RoleAssistant, Content: "now we ship"},
	})

	turns, summary := s.CollectConversation("s1", 0)
	assert.Equal(t, "earlier talk was about deployment", summary)
	require.Len(t, turns, 2, "the digest is reported as summary, not as a turn")
	assert.Equal(t, RoleUser, turns[0].Role)
}

func TestStore_LastCompletionTokens(t *testing.T) {
	t.Parallel()

	s := NewStore()
	assert.Zero(t, s.LastCompletionTokens("s1"))
	s.SetLastCompletionTokens("s1", 412)
	assert.Equal(t, 412, s.LastCompletionTokens("s1"))
}

func TestStore_Reset(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append("s1", Message{Role: RoleUser, Content: "hi"})
	s.SetLastCompletionTokens("s1", 99)

	s.Reset("s1")
	assert.Zero(t, s.Len("s1"))
	assert.Zero(t, s.LastCompletionTokens("s1"))
}

func TestStore_IDsSorted(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Append("zulu", Message{Role: RoleUser, Content: "z"})
	s.Append("alpha", Message{Role: RoleUser, Content: "a"})

	assert.Equal(t, []string{"alpha", "zulu"}, s.IDs())
}

func TestStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s.Append("shared", Message{Role: RoleUser, Content: fmt.Sprintf("%d-%d", n, j)})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16*25, s.Len("shared"))
}
