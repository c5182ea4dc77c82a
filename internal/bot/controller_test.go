package bot

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
	"github.com/sykelle/myanimelist-bot/internal/testutil"
)

func completion(cat domain.Category, id, score int, finished time.Time) domain.Completion {
	return domain.Completion{
		MalID:      id,
		Title:      "Title",
		Category:   cat,
		Score:      score,
		FinishedAt: finished,
	}
}

type fixture struct {
	source    *testutil.StaticSource
	states    *testutil.MemoryState
	publisher *testutil.ScriptedPublisher
	journal   *testutil.MemoryJournal
	c         *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		source:    &testutil.StaticSource{},
		states:    &testutil.MemoryState{},
		publisher: &testutil.ScriptedPublisher{},
		journal:   &testutil.MemoryJournal{},
	}
	f.c = New(zerolog.Nop(), f.source, testutil.NoImages{}, f.publisher, f.states, f.journal)
	return f
}

func (f *fixture) primed(t *testing.T) *fixture {
	t.Helper()
	f.c.Prime(context.Background())
	return f
}

func TestCycle_PublishesNewCompletionAndMarksState(t *testing.T) {
	today := time.Now()
	f := newFixture(t)
	f.source.Anime = []domain.Completion{completion(domain.CategoryAnime, 42, 9, today)}
	f.primed(t)

	st := f.c.RunOnce()

	if got := f.publisher.CallCount(); got != 1 {
		t.Fatalf("publish calls = %d, want 1", got)
	}
	saved := f.states.Snapshot()
	if len(saved.TweetedAnimeIDs) != 1 || saved.TweetedAnimeIDs[0] != 42 {
		t.Errorf("tweeted anime ids = %v, want [42]", saved.TweetedAnimeIDs)
	}
	if saved.LastCheck == "" {
		t.Error("last check not persisted")
	}
	if st.Phase != "idle" {
		t.Errorf("phase = %q, want idle", st.Phase)
	}
	if f.journal.Len() != 1 {
		t.Errorf("journal entries = %d, want 1", f.journal.Len())
	}
}

func TestCycle_IdempotentAcrossRepeatedTriggers(t *testing.T) {
	today := time.Now()
	f := newFixture(t)
	f.source.Anime = []domain.Completion{completion(domain.CategoryAnime, 7, 8, today)}
	f.primed(t)

	f.c.RunOnce()
	f.c.RunOnce()
	f.c.RunOnce()

	if got := f.publisher.CallCount(); got != 1 {
		t.Fatalf("publish calls across identical cycles = %d, want 1", got)
	}
}

func TestCycle_AtMostOnePublishPerCycle(t *testing.T) {
	today := time.Now()
	f := newFixture(t)
	f.source.Anime = []domain.Completion{
		completion(domain.CategoryAnime, 1, 7, today),
		completion(domain.CategoryAnime, 2, 8, today),
		completion(domain.CategoryAnime, 3, 9, today),
	}
	f.primed(t)

	f.c.RunOnce()

	if got := f.publisher.CallCount(); got != 1 {
		t.Fatalf("publish calls = %d, want 1", got)
	}
	// The first record in fetched order is the deterministic pick.
	if got := f.publisher.LastCall(t).Completion.MalID; got != 1 {
		t.Errorf("selected id = %d, want 1", got)
	}
}

func TestCycle_MangaSelectedOverAnime(t *testing.T) {
	today := time.Now()
	f := newFixture(t)
	f.source.Anime = []domain.Completion{completion(domain.CategoryAnime, 10, 7, today)}
	f.source.Manga = []domain.Completion{completion(domain.CategoryManga, 20, 7, today)}
	f.primed(t)

	f.c.RunOnce()

	call := f.publisher.LastCall(t)
	if call.Completion.Category != domain.CategoryManga || call.Completion.MalID != 20 {
		t.Errorf("selected %s/%d, want manga/20", call.Completion.Category, call.Completion.MalID)
	}

	// Next cycle picks up the remaining anime candidate.
	f.c.RunOnce()
	call = f.publisher.LastCall(t)
	if call.Completion.Category != domain.CategoryAnime || call.Completion.MalID != 10 {
		t.Errorf("selected %s/%d, want anime/10", call.Completion.Category, call.Completion.MalID)
	}
}

func TestCycle_PastFinishDateNeverSelected(t *testing.T) {
	f := newFixture(t)
	f.source.Anime = []domain.Completion{
		completion(domain.CategoryAnime, 1, 9, time.Now().AddDate(0, 0, -1)),
		completion(domain.CategoryAnime, 2, 9, time.Time{}), // legacy entry without a date
	}
	f.primed(t)

	f.c.RunOnce()

	if got := f.publisher.CallCount(); got != 0 {
		t.Fatalf("publish calls = %d, want 0 (historical entries excluded)", got)
	}
	saved := f.states.Snapshot()
	if len(saved.TweetedAnimeIDs) != 0 {
		t.Errorf("tweeted anime ids = %v, want empty", saved.TweetedAnimeIDs)
	}
	if saved.LastCheck == "" {
		t.Error("last check should still be persisted")
	}
}

func TestCycle_BothFetchesFailPreservesState(t *testing.T) {
	f := newFixture(t)
	f.primed(t)
	f.source.AnimeErr = errors.New("anime down")
	f.source.MangaErr = errors.New("manga down")
	saves := f.states.SaveCount()

	st := f.c.RunOnce()

	if st.Phase != "error" {
		t.Errorf("phase = %q, want error", st.Phase)
	}
	if st.ErrorMessage == "" {
		t.Error("error message not surfaced")
	}
	if f.states.SaveCount() != saves {
		t.Error("state persisted despite both fetches failing")
	}
}

func TestCycle_RecoversAfterErrorPhase(t *testing.T) {
	f := newFixture(t)
	f.primed(t)
	f.source.AnimeErr = errors.New("down")
	f.source.MangaErr = errors.New("down")
	f.c.RunOnce()

	f.source.AnimeErr = nil
	f.source.MangaErr = nil
	st := f.c.RunOnce()

	if st.Phase != "idle" {
		t.Errorf("phase after recovery = %q, want idle", st.Phase)
	}
	if st.ErrorMessage != "" {
		t.Errorf("stale error message %q", st.ErrorMessage)
	}
}

func TestCycle_OneFetchFailureStillPublishes(t *testing.T) {
	today := time.Now()
	f := newFixture(t)
	f.source.AnimeErr = errors.New("anime down")
	f.source.Manga = []domain.Completion{completion(domain.CategoryManga, 5, 6, today)}
	f.primed(t)

	st := f.c.RunOnce()

	if st.Phase != "idle" {
		t.Errorf("phase = %q, want idle", st.Phase)
	}
	if got := f.publisher.CallCount(); got != 1 {
		t.Fatalf("publish calls = %d, want 1", got)
	}
}

func TestCycle_PublishFailureLeavesIdUnmarked(t *testing.T) {
	today := time.Now()
	f := newFixture(t)
	f.source.Anime = []domain.Completion{completion(domain.CategoryAnime, 9, 5, today)}
	f.publisher.Err = errors.Wrap(domain.ErrRateLimited, "retry after rate limit failed")
	f.primed(t)

	st := f.c.RunOnce()

	// A handled publish failure is recoverable on the next cycle, not fatal.
	if st.Phase != "idle" {
		t.Errorf("phase = %q, want idle", st.Phase)
	}
	saved := f.states.Snapshot()
	if len(saved.TweetedAnimeIDs) != 0 {
		t.Errorf("tweeted anime ids = %v, want empty", saved.TweetedAnimeIDs)
	}
	if saved.LastCheck == "" {
		t.Error("last check should be persisted after a handled failure")
	}

	// The next cycle re-attempts the same id once publishing recovers.
	f.publisher.Err = nil
	f.c.RunOnce()
	if got := f.publisher.CallCount(); got != 2 {
		t.Fatalf("publish calls = %d, want 2", got)
	}
	if got := f.states.Snapshot().TweetedAnimeIDs; len(got) != 1 || got[0] != 9 {
		t.Errorf("tweeted anime ids = %v, want [9]", got)
	}
}

// blockingSource parks every fetch until released, to hold a cycle open.
type blockingSource struct {
	release chan struct{}
}

func (b *blockingSource) FetchCompleted(ctx context.Context, cat domain.Category) ([]domain.Completion, error) {
	<-b.release
	return nil, nil
}

func TestTryTrigger_SecondTriggerDuringCycleIsNoOp(t *testing.T) {
	src := &blockingSource{release: make(chan struct{})}
	states := &testutil.MemoryState{}
	pub := &testutil.ScriptedPublisher{}
	c := New(zerolog.Nop(), src, testutil.NoImages{}, pub, states, nil)
	c.phase.Store(int32(domain.PhaseIdle))

	if !c.TryTrigger() {
		t.Fatal("first trigger should start a cycle")
	}
	if c.TryTrigger() {
		t.Fatal("second trigger must be a no-op while checking")
	}

	close(src.release)
	waitForPhase(t, c, "idle")

	if !c.TryTrigger() {
		t.Fatal("trigger should work again once idle")
	}
	waitForPhase(t, c, "idle")
}

func TestTryTrigger_NotReadyBeforePrime(t *testing.T) {
	f := newFixture(t)
	if f.c.TryTrigger() {
		t.Fatal("trigger must be a no-op while starting")
	}
}

func TestPrime_SetsCountsAndGoesIdle(t *testing.T) {
	f := newFixture(t)
	f.source.Anime = make([]domain.Completion, 3)
	f.source.Manga = make([]domain.Completion, 2)
	for i := range f.source.Anime {
		f.source.Anime[i] = completion(domain.CategoryAnime, i+1, 0, time.Time{})
	}
	for i := range f.source.Manga {
		f.source.Manga[i] = completion(domain.CategoryManga, i+1, 0, time.Time{})
	}

	f.c.Prime(context.Background())

	st := f.c.Snapshot()
	if st.Phase != "idle" {
		t.Errorf("phase = %q, want idle", st.Phase)
	}
	if st.CompletedAnime != 3 || st.CompletedManga != 2 {
		t.Errorf("counts = %d/%d, want 3/2", st.CompletedAnime, st.CompletedManga)
	}
	if f.publisher.CallCount() != 0 {
		t.Error("priming must never publish")
	}
}

func TestCycle_PanicIsContained(t *testing.T) {
	src := &testutil.StaticSource{
		Anime: []domain.Completion{completion(domain.CategoryAnime, 1, 9, time.Now())},
	}
	// Panicking publisher simulates an unexpected failure deep in the cycle.
	c := New(zerolog.Nop(), src, testutil.NoImages{}, panickyPublisher{}, &testutil.MemoryState{}, nil)
	c.phase.Store(int32(domain.PhaseIdle))

	st := c.RunOnce()
	if st.Phase != "error" {
		t.Errorf("phase = %q, want error", st.Phase)
	}
	if st.ErrorMessage == "" {
		t.Error("panic message not recorded")
	}
}

type panickyPublisher struct{}

func (panickyPublisher) Publish(ctx context.Context, c domain.Completion, imagePath string) (string, error) {
	panic("boom")
}

func waitForPhase(t *testing.T, c *Controller, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if c.Snapshot().Phase == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for phase %q, at %q", want, c.Snapshot().Phase)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
