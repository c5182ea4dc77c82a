package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

// JournalRepo implements domain.JournalRepository on the sqlite journal.
type JournalRepo struct {
	log zerolog.Logger
	db  *DB
}

var _ domain.JournalRepository = (*JournalRepo)(nil)

// NewJournalRepo creates a journal repository.
func NewJournalRepo(log zerolog.Logger, db *DB) *JournalRepo {
	return &JournalRepo{
		log: log.With().Str("repo", "journal").Logger(),
		db:  db,
	}
}

// Record inserts one confirmed publish.
func (r *JournalRepo) Record(ctx context.Context, entry domain.JournalEntry) error {
	queryBuilder := r.db.squirrel.
		Insert("publish_log").
		Columns("mal_id", "category", "title", "score", "tweet_id", "posted_at").
		Values(entry.MalID, string(entry.Category), entry.Title, entry.Score, entry.TweetID, entry.PostedAt.Format(time.RFC3339))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error inserting journal entry")
	}

	r.log.Debug().Int("malid", entry.MalID).Str("tweet_id", entry.TweetID).Msg("journaled publish")
	return nil
}

// Recent returns up to limit entries, most recent first.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]domain.JournalEntry, error) {
	queryBuilder := r.db.squirrel.
		Select("id", "mal_id", "category", "title", "score", "tweet_id", "posted_at").
		From("publish_log").
		OrderBy("posted_at DESC", "id DESC").
		Limit(uint64(limit))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying journal")
	}
	defer rows.Close()

	var out []domain.JournalEntry
	for rows.Next() {
		var (
			entry    domain.JournalEntry
			category string
			postedAt string
		)
		if err := rows.Scan(&entry.ID, &entry.MalID, &category, &entry.Title, &entry.Score, &entry.TweetID, &postedAt); err != nil {
			return nil, errors.Wrap(err, "error scanning journal row")
		}
		entry.Category = domain.Category(category)
		if t, err := time.Parse(time.RFC3339, postedAt); err == nil {
			entry.PostedAt = t
		}
		out = append(out, entry)
	}

	return out, rows.Err()
}
