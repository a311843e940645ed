package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Feedback kinds accepted by AddFeedback.
const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
)

// Embedding is one stored section vector for a report.
type Embedding struct {
	ID        string
	ReportID  int64
	Section   string
	Text      string
	Vector    []float32
	CreatedAt time.Time
}

// Feedback is one user judgement on a report surfaced by a search.
type Feedback struct {
	ID        string    `json:"id"`
	ReportID  int64     `json:"report_id"`
	Query     string    `json:"query,omitempty"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchQuery is one recorded search and its result count.
type SearchQuery struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stats are aggregate counters computed on demand, never cached.
type Stats struct {
	ReportCount    int
	EmbeddingCount int
	FeedbackCount  int
	SearchCount    int
	AvgTrustScore  float64
}
