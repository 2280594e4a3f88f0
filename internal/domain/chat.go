package domain

import "time"

// ChatItem is one broadcast message pushed by the server.
type ChatItem struct {
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	From    string `json:"from"`
	Text    string `json:"text"`
	SentAt  int64  `json:"sent_at"` // unix milliseconds, server clock
}

// Time returns SentAt as a time.Time.
func (c ChatItem) Time() time.Time {
	return time.UnixMilli(c.SentAt)
}
