package database

const schema = `
CREATE TABLE publish_log
(
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    mal_id    INTEGER NOT NULL,
    category  TEXT    NOT NULL,
    title     TEXT    NOT NULL,
    score     INTEGER NOT NULL DEFAULT 0,
    tweet_id  TEXT    NOT NULL,
    posted_at TEXT    NOT NULL
);

CREATE INDEX idx_publish_log_posted_at ON publish_log (posted_at DESC);
CREATE INDEX idx_publish_log_mal_id ON publish_log (category, mal_id);
`

var migrations = []string{
	"", // version 0 is the initial schema above
}
