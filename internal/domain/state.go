package domain

import "time"

// TrackingState is the persisted record of everything already published.
// Ids are appended only after a confirmed publish and are never removed,
// so the sets grow monotonically across cycles and restarts.
type TrackingState struct {
	TweetedAnimeIDs []int  `json:"tweeted_anime_ids"`
	TweetedMangaIDs []int  `json:"tweeted_manga_ids"`
	LastCheck       string `json:"last_check,omitempty"` // RFC3339, empty until the first completed cycle
}

// PublishedSet returns the published ids for a category as a set.
func (s *TrackingState) PublishedSet(cat Category) map[int]struct{} {
	ids := s.TweetedAnimeIDs
	if cat == CategoryManga {
		ids = s.TweetedMangaIDs
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// MarkPublished appends id to the category's published list.
func (s *TrackingState) MarkPublished(cat Category, id int) {
	if cat == CategoryManga {
		s.TweetedMangaIDs = append(s.TweetedMangaIDs, id)
		return
	}
	s.TweetedAnimeIDs = append(s.TweetedAnimeIDs, id)
}

// SetLastCheck records t as the time of the most recent completed cycle.
func (s *TrackingState) SetLastCheck(t time.Time) {
	s.LastCheck = t.Format(time.RFC3339)
}
