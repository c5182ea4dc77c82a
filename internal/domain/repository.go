package domain

import (
	"context"
	"time"
)

// StateRepository loads and persists TrackingState. Save must replace the
// previous file atomically so a crash never leaves a truncated state.
type StateRepository interface {
	Load(ctx context.Context) (*TrackingState, error)
	Save(ctx context.Context, state *TrackingState) error
}

// CompletionSource fetches the full completed list for one category.
type CompletionSource interface {
	FetchCompleted(ctx context.Context, cat Category) ([]Completion, error)
}

// ImageFetcher downloads and normalizes a cover image for a completion.
// A nil asset with a nil error is a valid outcome (no URL, or download
// failed); publishing then proceeds text-only.
type ImageFetcher interface {
	Acquire(ctx context.Context, c Completion) (*MediaAsset, error)
}

// Publisher posts a completion, optionally with the image at imagePath
// (empty means text-only), and returns the remote post id on success.
// It never mutates shared state; the caller marks ids published.
type Publisher interface {
	Publish(ctx context.Context, c Completion, imagePath string) (string, error)
}

// JournalRepository records confirmed publishes.
type JournalRepository interface {
	Record(ctx context.Context, entry JournalEntry) error
	Recent(ctx context.Context, limit int) ([]JournalEntry, error)
}

// JournalEntry is one confirmed publish.
type JournalEntry struct {
	ID       int64     `json:"id"`
	MalID    int       `json:"mal_id"`
	Category Category  `json:"category"`
	Title    string    `json:"title"`
	Score    int       `json:"score"`
	TweetID  string    `json:"tweet_id"`
	PostedAt time.Time `json:"posted_at"`
}
