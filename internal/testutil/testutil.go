// Package testutil provides shared fakes and helpers for exercising the
// cycle pipeline without real MAL or Twitter endpoints.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/database"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

// TestDB creates a temporary journal database that is cleaned up with the test.
func TestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// StaticSource serves fixed lists per category, optionally failing.
type StaticSource struct {
	mu       sync.Mutex
	Anime    []domain.Completion
	Manga    []domain.Completion
	AnimeErr error
	MangaErr error
	Calls    int
}

func (s *StaticSource) FetchCompleted(ctx context.Context, cat domain.Category) ([]domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if cat == domain.CategoryManga {
		return s.Manga, s.MangaErr
	}
	return s.Anime, s.AnimeErr
}

// MemoryState is an in-memory StateRepository.
type MemoryState struct {
	mu      sync.Mutex
	State   domain.TrackingState
	LoadErr error
	SaveErr error
	Saves   int
}

func (m *MemoryState) Load(ctx context.Context) (*domain.TrackingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	st := domain.TrackingState{
		TweetedAnimeIDs: append([]int(nil), m.State.TweetedAnimeIDs...),
		TweetedMangaIDs: append([]int(nil), m.State.TweetedMangaIDs...),
		LastCheck:       m.State.LastCheck,
	}
	return &st, nil
}

func (m *MemoryState) Save(ctx context.Context, st *domain.TrackingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.State = *st
	m.Saves++
	return nil
}

// SaveCount returns how many times Save succeeded.
func (m *MemoryState) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Saves
}

// Snapshot returns a copy of the stored state.
func (m *MemoryState) Snapshot() domain.TrackingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State
}

// PublishCall records one Publish invocation.
type PublishCall struct {
	Completion domain.Completion
	ImagePath  string
}

// ScriptedPublisher returns a fixed tweet id or error and records calls.
type ScriptedPublisher struct {
	mu      sync.Mutex
	TweetID string
	Err     error
	Calls   []PublishCall
}

func (p *ScriptedPublisher) Publish(ctx context.Context, c domain.Completion, imagePath string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, PublishCall{Completion: c, ImagePath: imagePath})
	if p.Err != nil {
		return "", p.Err
	}
	id := p.TweetID
	if id == "" {
		id = "1"
	}
	return id, nil
}

// CallCount returns how many times Publish was invoked.
func (p *ScriptedPublisher) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent Publish invocation.
func (p *ScriptedPublisher) LastCall(t *testing.T) PublishCall {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		t.Fatal("no publish calls recorded")
	}
	return p.Calls[len(p.Calls)-1]
}

// NoImages is an ImageFetcher that never produces an asset.
type NoImages struct{}

func (NoImages) Acquire(ctx context.Context, c domain.Completion) (*domain.MediaAsset, error) {
	return nil, nil
}

// MemoryJournal stores journal entries in memory, most recent last.
type MemoryJournal struct {
	mu      sync.Mutex
	Entries []domain.JournalEntry
}

func (j *MemoryJournal) Record(ctx context.Context, entry domain.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.ID = int64(len(j.Entries) + 1)
	j.Entries = append(j.Entries, entry)
	return nil
}

func (j *MemoryJournal) Recent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.JournalEntry
	for i := len(j.Entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.Entries[i])
	}
	return out, nil
}

// Len returns the number of recorded entries.
func (j *MemoryJournal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.Entries)
}
