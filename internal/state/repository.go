package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

// Repository persists TrackingState as a JSON file. Writes go through a
// temp file in the same directory followed by a rename, so readers never
// observe a truncated state after a crash.
type Repository struct {
	log  zerolog.Logger
	path string
}

var _ domain.StateRepository = (*Repository)(nil)

// NewRepository creates a file-backed state repository.
func NewRepository(log zerolog.Logger, path string) *Repository {
	return &Repository{
		log:  log.With().Str("module", "state").Logger(),
		path: path,
	}
}

// Load reads the persisted state. A missing file is the first-run case and
// yields an empty state; a corrupt file is an error so a last-known-good
// file is never silently replaced.
func (r *Repository) Load(ctx context.Context) (*domain.TrackingState, error) {
	body, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Info().Str("path", r.path).Msg("no state file, starting with empty state")
			return &domain.TrackingState{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read state file %s", r.path)
	}

	st := &domain.TrackingState{}
	if err := json.Unmarshal(body, st); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal state file %s", r.path)
	}

	return st, nil
}

// Save atomically replaces the state file.
func (r *Repository) Save(ctx context.Context, st *domain.TrackingState) error {
	body, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal state")
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temp state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close temp state file")
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "failed to replace state file %s", r.path)
	}

	r.log.Debug().Str("path", r.path).
		Int("anime", len(st.TweetedAnimeIDs)).
		Int("manga", len(st.TweetedMangaIDs)).
		Msg("state saved")
	return nil
}
