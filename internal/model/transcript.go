// SPDX-License-Identifier: AGPL-3.0-only
package model

import "time"

// Channels a conversation can arrive through.
const (
	ChannelTerminal  = "terminal"
	ChannelGateway   = "gateway"
	ChannelScheduled = "scheduled"
)

// TranscriptMessage is one persisted conversation message.
type TranscriptMessage struct {
	Seq        int    `json:"seq"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Transcript is the full history of one session.
type Transcript struct {
	SessionID string              `json:"session_id"`
	Channel   string              `json:"channel"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   time.Time           `json:"ended_at"`
	Messages  []TranscriptMessage `json:"messages"`
}

// TranscriptStore persists session transcripts.
type TranscriptStore interface {
	SaveTranscript(t *Transcript) error
	// GetTranscript returns nil, nil when the session is unknown.
	GetTranscript(sessionID string) (*Transcript, error)
}
