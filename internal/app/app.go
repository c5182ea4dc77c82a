package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/bot"
	"github.com/sykelle/myanimelist-bot/internal/config"
	"github.com/sykelle/myanimelist-bot/internal/database"
	"github.com/sykelle/myanimelist-bot/internal/domain"
	"github.com/sykelle/myanimelist-bot/internal/image"
	"github.com/sykelle/myanimelist-bot/internal/logger"
	"github.com/sykelle/myanimelist-bot/internal/mal"
	"github.com/sykelle/myanimelist-bot/internal/server"
	"github.com/sykelle/myanimelist-bot/internal/state"
	"github.com/sykelle/myanimelist-bot/internal/twitter"
	"golang.org/x/sync/errgroup"
)

// App holds the wired application.
type App struct {
	log        zerolog.Logger
	config     *domain.Config
	db         *database.DB
	controller *bot.Controller
	server     *server.Server
}

// NewApp creates an application instance with all dependencies initialized.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := database.NewDB(cfg.DataDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	journal := database.NewJournalRepo(log, db)
	states := state.NewRepository(log, filepath.Join(cfg.DataDir, cfg.StateFile))
	source := mal.NewService(log, cfg)
	images := image.NewFetcher(log, cfg.TempDir)
	publisher := twitter.NewClient(log, cfg)

	controller := bot.New(log, source, images, publisher, states, journal,
		bot.WithCycleTimeout(cfg.CycleTimeout),
	)

	srv := server.New(log, cfg.ListenAddr, controller, journal)

	log.Info().Str("user", cfg.MalUsername).Str("addr", cfg.ListenAddr).Msg("application initialized")

	return &App{
		log:        log,
		config:     cfg,
		db:         db,
		controller: controller,
		server:     srv,
	}, nil
}

// Run serves the trigger surface until interrupted. Startup primes the
// status counts in the background so the first ping sees real numbers.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.db.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		a.controller.Prime(gctx)
		return nil
	})

	err := g.Wait()
	a.log.Info().Msg("shutting down")
	return err
}

// CheckOnce runs a single poll-and-publish cycle synchronously. It returns
// an error when the cycle ends in the error phase, for use as an exit code.
func (a *App) CheckOnce(ctx context.Context) error {
	defer a.db.Close()

	a.controller.Prime(ctx)
	st := a.controller.RunOnce()
	if st.Phase == domain.PhaseError.String() {
		return fmt.Errorf("cycle failed: %s", st.ErrorMessage)
	}

	a.log.Info().
		Int("completed_anime", st.CompletedAnime).
		Int("completed_manga", st.CompletedManga).
		Msg("check complete")
	return nil
}
