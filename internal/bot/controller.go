package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

const defaultCycleTimeout = 10 * time.Minute

// Controller runs the poll-and-publish cycle. The phase field is the sole
// concurrency guard: a cycle begins only through a compare-and-swap into
// PhaseChecking, so repeated triggers can never start overlapping cycles.
type Controller struct {
	log       zerolog.Logger
	source    domain.CompletionSource
	images    domain.ImageFetcher
	publisher domain.Publisher
	states    domain.StateRepository
	journal   domain.JournalRepository

	cycleTimeout time.Duration
	now          func() time.Time

	phase atomic.Int32

	// Remaining status fields are last-write-wins behind the mutex;
	// readers take a snapshot, never the live struct.
	mu         sync.RWMutex
	lastCheck  string
	animeCount int
	mangaCount int
	errMsg     string
}

// Option configures the controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithCycleTimeout bounds the total duration of one cycle.
func WithCycleTimeout(d time.Duration) Option {
	return func(c *Controller) { c.cycleTimeout = d }
}

// New creates a controller in the starting phase. journal may be nil.
func New(log zerolog.Logger, source domain.CompletionSource, images domain.ImageFetcher, publisher domain.Publisher, states domain.StateRepository, journal domain.JournalRepository, opts ...Option) *Controller {
	c := &Controller{
		log:          log.With().Str("module", "bot").Logger(),
		source:       source,
		images:       images,
		publisher:    publisher,
		states:       states,
		journal:      journal,
		cycleTimeout: defaultCycleTimeout,
		now:          time.Now,
	}
	c.phase.Store(int32(domain.PhaseStarting))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current status.
func (c *Controller) Snapshot() domain.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.Status{
		Phase:          domain.Phase(c.phase.Load()).String(),
		LastCheck:      c.lastCheck,
		CompletedAnime: c.animeCount,
		CompletedManga: c.mangaCount,
		ErrorMessage:   c.errMsg,
	}
}

// TryTrigger starts a cycle in a new goroutine if the controller is idle
// (or in the error phase, so the next ping attempts recovery). Returns
// whether a cycle was started.
func (c *Controller) TryTrigger() bool {
	if !c.tryBegin() {
		return false
	}
	go c.runCycle()
	return true
}

// RunOnce executes a single cycle synchronously and returns the resulting
// status. Used by the one-shot check command.
func (c *Controller) RunOnce() domain.Status {
	if c.tryBegin() {
		c.runCycle()
	}
	return c.Snapshot()
}

func (c *Controller) tryBegin() bool {
	return c.phase.CompareAndSwap(int32(domain.PhaseIdle), int32(domain.PhaseChecking)) ||
		c.phase.CompareAndSwap(int32(domain.PhaseError), int32(domain.PhaseChecking))
}

// Prime moves the controller from starting to idle, fetching initial list
// counts on a best-effort basis. Nothing is published here.
func (c *Controller) Prime(ctx context.Context) {
	c.phase.Store(int32(domain.PhaseInitializing))

	for _, cat := range []domain.Category{domain.CategoryAnime, domain.CategoryManga} {
		list, err := c.source.FetchCompleted(ctx, cat)
		if err != nil {
			c.log.Warn().Err(err).Str("category", string(cat)).Msg("initial count fetch failed")
			continue
		}
		c.setCount(cat, len(list))
	}

	c.phase.Store(int32(domain.PhaseIdle))
	c.log.Info().Msg("ready, waiting for pings")
}

func (c *Controller) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cycleTimeout)
	defer cancel()

	// Last-resort safety net: nothing inside a cycle may crash the process.
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("cycle panicked")
			c.fail(fmt.Sprintf("panic: %v", r))
		}
	}()

	c.log.Info().Msg("cycle started")
	c.setError("")

	st, err := c.states.Load(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to load state")
		c.fail(err.Error())
		return
	}

	anime, animeErr := c.source.FetchCompleted(ctx, domain.CategoryAnime)
	manga, mangaErr := c.source.FetchCompleted(ctx, domain.CategoryManga)

	if animeErr != nil && mangaErr != nil {
		// Keep the last-known-good state on disk untouched.
		c.log.Error().AnErr("anime", animeErr).AnErr("manga", mangaErr).Msg("both list fetches failed")
		c.fail(fmt.Sprintf("anime: %v; manga: %v", animeErr, mangaErr))
		return
	}
	if animeErr != nil {
		c.log.Error().Err(animeErr).Msg("anime fetch failed")
	} else {
		c.setCount(domain.CategoryAnime, len(anime))
	}
	if mangaErr != nil {
		c.log.Error().Err(mangaErr).Msg("manga fetch failed")
	} else {
		c.setCount(domain.CategoryManga, len(manga))
	}

	// At most one publish per cycle. Manga candidates take priority, and
	// within a category the first record in fetched order wins. Entries
	// finished before today are deliberately excluded so a first run (or a
	// run after downtime) cannot flood the publishing API.
	today := c.now()
	candidate := selectCandidate(st, today, manga, anime)

	if candidate != nil {
		c.publishOne(ctx, st, *candidate)
	} else {
		c.log.Info().Msg("no new completions to publish")
	}

	now := c.now()
	st.SetLastCheck(now)
	if err := c.states.Save(ctx, st); err != nil {
		c.log.Error().Err(err).Msg("failed to persist state")
		c.fail(err.Error())
		return
	}

	c.mu.Lock()
	c.lastCheck = st.LastCheck
	c.mu.Unlock()

	c.phase.Store(int32(domain.PhaseIdle))
	c.log.Info().Msg("cycle finished")
}

// selectCandidate scans the category lists in priority order and returns
// the first record that is unpublished and finished today or later.
func selectCandidate(st *domain.TrackingState, today time.Time, lists ...[]domain.Completion) *domain.Completion {
	for _, list := range lists {
		if len(list) == 0 {
			continue
		}
		published := st.PublishedSet(list[0].Category)
		for i := range list {
			if _, ok := published[list[i].MalID]; ok {
				continue
			}
			if !list[i].FinishedOnOrAfter(today) {
				continue
			}
			return &list[i]
		}
	}
	return nil
}

func (c *Controller) publishOne(ctx context.Context, st *domain.TrackingState, item domain.Completion) {
	c.log.Info().
		Str("category", string(item.Category)).
		Int("malid", item.MalID).
		Str("title", item.Title).
		Int("score", item.Score).
		Msg("publishing new completion")

	asset, err := c.images.Acquire(ctx, item)
	if err != nil {
		c.log.Warn().Err(err).Msg("image acquisition failed, continuing text-only")
	}
	defer asset.Remove()

	imagePath := ""
	if asset != nil {
		imagePath = asset.Path
	}

	tweetID, err := c.publisher.Publish(ctx, item, imagePath)
	if err != nil {
		// Handled failure: the id stays unpublished and the next cycle
		// re-attempts naturally.
		if errors.Is(err, domain.ErrAuthFailed) || errors.Is(err, domain.ErrAccessDenied) {
			c.log.Error().Err(err).Msg("publisher rejected credentials, check configuration")
		} else {
			c.log.Error().Err(err).Msg("publish failed")
		}
		return
	}

	st.MarkPublished(item.Category, item.MalID)

	if c.journal != nil {
		entry := domain.JournalEntry{
			MalID:    item.MalID,
			Category: item.Category,
			Title:    item.Title,
			Score:    item.Score,
			TweetID:  tweetID,
			PostedAt: c.now(),
		}
		if err := c.journal.Record(ctx, entry); err != nil {
			c.log.Warn().Err(err).Msg("failed to journal publish")
		}
	}
}

func (c *Controller) setCount(cat domain.Category, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cat == domain.CategoryManga {
		c.mangaCount = n
		return
	}
	c.animeCount = n
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

func (c *Controller) fail(msg string) {
	c.setError(msg)
	c.phase.Store(int32(domain.PhaseError))
}
