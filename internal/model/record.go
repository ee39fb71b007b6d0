package model

import (
	"strings"
	"time"
)

// DefaultAgent is used when a submission carries no agent name.
const DefaultAgent = "Unknown"

// separatorWidth is the width of the "=" rules framing a formatted record.
const separatorWidth = 70

// Submission is the JSON body an agent POSTs to the ingestion endpoint.
// Both fields are optional; any other fields are ignored.
type Submission struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
}

// Record is one accepted log message. Records are passed by value and are
// never modified after NewRecord returns.
type Record struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	Agent      string    `json:"agent"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
	Text       string    `json:"text"` // human-readable block, see FormatText
}

// NewRecord builds a Record, substituting DefaultAgent for an empty agent
// and deriving Text from the remaining fields.
func NewRecord(id string, seq uint64, agent, content string, receivedAt time.Time) Record {
	if agent == "" {
		agent = DefaultAgent
	}
	return Record{
		ID:         id,
		Seq:        seq,
		Agent:      agent,
		Content:    content,
		ReceivedAt: receivedAt,
		Text:       FormatText(agent, content, receivedAt),
	}
}

// FormatText renders the display block written to the console, the append
// log file and every stream frame. It depends only on its arguments.
func FormatText(agent, content string, receivedAt time.Time) string {
	rule := strings.Repeat("=", separatorWidth)

	var b strings.Builder
	b.Grow(3*separatorWidth + len(agent) + len(content) + 48)
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n📩 [")
	b.WriteString(receivedAt.Format("15:04:05"))
	b.WriteString("] message from '")
	b.WriteString(agent)
	b.WriteString("':\n")
	b.WriteString(rule)
	b.WriteString("\n")
	b.WriteString(content)
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n")
	return b.String()
}
