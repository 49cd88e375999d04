// Package session tracks per-client conversation state. A session is keyed
// by the id the gateway derives from a client connection; the chat loop
// appends turns as they happen and the prompt assembler reads them back
// when building model requests.
package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultID is the session used when a client does not present one.
const DefaultID = "default"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation turn.
type Message struct {
	// Role is one of the Role* constants.
	Role string `json:"role"`

	// Content is the turn's text.
	Content string `json:"content"`

	// Name carries the tool name on RoleTool messages.
	Name string `json:"name,omitempty"`
}

// Session is the conversation state for one client. Sessions are mutated
// only through their Store, which serializes access.
type Session struct {
	// ID is the session key.
	ID string `json:"id"`

	// Messages holds the conversation in arrival order.
	Messages []Message `json:"messages"`

	// LastCompletionTokens records the size of the most recent model
	// completion, used to cap continuation requests.
	LastCompletionTokens int `json:"lastCompletionTokens,omitempty"`

	// CreatedAt and UpdatedAt bound the session's lifetime.
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store holds all live sessions. Sessions are created on first touch and
// live for the process lifetime. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// get returns the session for id, creating it when absent. Callers must
// hold s.mu. An empty id maps to DefaultID.
func (s *Store) get(id string) *Session {
	if id == "" {
		id = DefaultID
	}
	sess, ok := s.sessions[id]
	if !ok {
		now := time.Now().UTC()
		sess = &Session{ID: id, CreatedAt: now, UpdatedAt: now}
		s.sessions[id] = sess
	}
	return sess
}

// Append adds a message to the session's history.
func (s *Store) Append(id string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now().UTC()
}

// History returns a copy of the session's messages in arrival order. The
// copy is the caller's to mutate.
func (s *Store) History(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	out := make([]Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out
}

// CollectConversation returns the session's conversation turns that fit
// within tokenLimit, preferring the newest and keeping chronological order,
// together with the rolling summary. The summary is the digest compaction
// installs in place of evicted history (stored turns are user and assistant
// messages only, so any system message in a session is such a digest);
// it is empty until the history has been compacted. Costing here is the
// store's own coarse estimate; the prompt assembler re-budgets precisely
// when it builds the request. A tokenLimit <= 0 returns every turn.
func (s *Store) CollectConversation(id string, tokenLimit int) ([]Message, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	summary := ""
	var turns []Message
	for _, m := range sess.Messages {
		if m.Role == RoleSystem {
			summary = m.Content
			continue
		}
		turns = append(turns, m)
	}

	start := 0
	if tokenLimit > 0 {
		start = len(turns)
		spent := 0
		for i := len(turns) - 1; i >= 0; i-- {
			cost := (len(turns[i].Content) + 3) / 4
			if spent+cost > tokenLimit {
				break
			}
			spent += cost
			start = i
		}
	}
	out := make([]Message, len(turns)-start)
	copy(out, turns[start:])
	return out, summary
}

// Replace swaps the session's history wholesale. The compaction pass uses
// this to install a summarized history.
func (s *Store) Replace(id string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.Messages = make([]Message, len(msgs))
	copy(sess.Messages, msgs)
	sess.UpdatedAt = time.Now().UTC()
}

// SetLastCompletionTokens records the size of the latest completion.
func (s *Store) SetLastCompletionTokens(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.LastCompletionTokens = n
	sess.UpdatedAt = time.Now().UTC()
}

// LastCompletionTokens returns the recorded completion size, or zero when
// none has been recorded yet.
func (s *Store) LastCompletionTokens(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id).LastCompletionTokens
}

// Len returns the number of messages in the session's history.
func (s *Store) Len(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.get(id).Messages)
}

// Reset clears the session's history but keeps the session alive.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.Messages = nil
	sess.LastCompletionTokens = 0
	sess.UpdatedAt = time.Now().UTC()
}

// IDs returns all session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
