// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jolks/mcp-toolchat/internal/model"
)

// Session is the state of one conversation. Respond holds its lock for the
// whole turn, so concurrent calls on one session run one after the other.
type Session struct {
	ID        string
	Channel   string
	StartedAt time.Time

	mu       sync.Mutex
	messages []Message
}

// NewSession starts an empty conversation.
func NewSession(channel string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Channel:   channel,
		StartedAt: time.Now(),
	}
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Transcript snapshots the session for persistence.
func (s *Session) Transcript() *model.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &model.Transcript{
		SessionID: s.ID,
		Channel:   s.Channel,
		StartedAt: s.StartedAt,
		EndedAt:   time.Now(),
		Messages:  make([]model.TranscriptMessage, 0, len(s.messages)),
	}
	for i, m := range s.messages {
		tm := model.TranscriptMessage{
			Seq:        i,
			Role:       m.Role,
			Content:    m.Content,
			ToolName:   m.ToolName,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			tm.ToolName = m.ToolCalls[0].Name
			tm.ToolCallID = m.ToolCalls[0].ID
			if tm.Content == "" {
				tm.Content = m.ToolCalls[0].Arguments
			}
		}
		t.Messages = append(t.Messages, tm)
	}
	return t
}
