package domain

import "time"

// GeneratedPhoto is the durable record of a composed group photo. One row is
// written per successful job finalize, before the group flips to completed.
type GeneratedPhoto struct {
	ID         string
	GroupID    string
	ImageURL   string
	PromptUsed string
	Metadata   map[string]any
	CreatedAt  time.Time
}
