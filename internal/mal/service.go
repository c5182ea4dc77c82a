package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.myanimelist.net/v2"
	pageLimit      = 1000
	userAgent      = "mal-bot/1.0"

	animeFields = "list_status,title,main_picture,start_season,genres,num_episodes"
	mangaFields = "list_status,title,main_picture,start_date,genres,num_volumes,num_chapters"
)

// Service fetches a user's completed lists from the MAL v2 API.
type Service interface {
	FetchCompleted(ctx context.Context, cat domain.Category) ([]domain.Completion, error)
}

type service struct {
	log      zerolog.Logger
	client   *http.Client
	limiter  *rate.Limiter
	baseURL  string
	username string
}

// Option configures the service.
type Option func(*service)

// WithBaseURL overrides the MAL API base URL.
func WithBaseURL(url string) Option {
	return func(s *service) { s.baseURL = url }
}

type clientIDTransport struct {
	Transport http.RoundTripper
	ClientID  string
}

func (c *clientIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.Transport == nil {
		c.Transport = http.DefaultTransport
	}
	req.Header.Set("X-MAL-CLIENT-ID", c.ClientID)
	req.Header.Set("User-Agent", userAgent)
	return c.Transport.RoundTrip(req)
}

// listResponse mirrors the MAL v2 list endpoint payload. Fields used by
// only one category decode to zero for the other.
type listResponse struct {
	Data   []listEntry `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type listEntry struct {
	Node struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		MainPicture struct {
			Medium string `json:"medium"`
			Large  string `json:"large"`
		} `json:"main_picture"`
		NumEpisodes int `json:"num_episodes"`
		NumVolumes  int `json:"num_volumes"`
		NumChapters int `json:"num_chapters"`
		StartSeason struct {
			Year int `json:"year"`
		} `json:"start_season"`
		StartDate string `json:"start_date"`
		Genres    []struct {
			Name string `json:"name"`
		} `json:"genres"`
	} `json:"node"`
	ListStatus struct {
		Score      int    `json:"score"`
		FinishDate string `json:"finish_date"`
	} `json:"list_status"`
}

// NewService creates a MAL client for the configured profile.
func NewService(log zerolog.Logger, cfg *domain.Config, opts ...Option) Service {
	s := &service{
		log: log.With().Str("module", "mal").Logger(),
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &clientIDTransport{ClientID: cfg.MalClientID},
		},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		baseURL:  defaultBaseURL,
		username: cfg.MalUsername,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchCompleted retrieves the full completed list for one category,
// following pagination until exhausted. There is no retry here; a failed
// fetch is reported to the controller and re-attempted on the next cycle.
func (s *service) FetchCompleted(ctx context.Context, cat domain.Category) ([]domain.Completion, error) {
	fields := animeFields
	if cat == domain.CategoryManga {
		fields = mangaFields
	}

	url := fmt.Sprintf("%s/users/%s/%slist?status=completed&limit=%d&fields=%s", s.baseURL, s.username, cat, pageLimit, fields)
	s.log.Info().Str("category", string(cat)).Str("user", s.username).Msg("fetching completed list")

	var out []domain.Completion
	for url != "" {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}

		page, err := s.fetchPage(ctx, cat, url)
		if err != nil {
			return nil, err
		}

		for _, entry := range page.Data {
			if entry.Node.ID == 0 || entry.Node.Title == "" {
				s.log.Warn().Str("category", string(cat)).Msg("skipping malformed list entry")
				continue
			}
			out = append(out, s.toCompletion(cat, entry))
		}

		url = page.Paging.Next
	}

	s.log.Info().Str("category", string(cat)).Int("count", len(out)).Msg("fetched completed list")
	return out, nil
}

func (s *service) fetchPage(ctx context.Context, cat domain.Category, url string) (*listResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s list", cat)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, errors.Wrapf(domain.ErrAuthFailed, "fetching %s list", cat)
	case http.StatusForbidden:
		return nil, errors.Wrapf(domain.ErrAccessDenied, "fetching %s list", cat)
	default:
		return nil, fmt.Errorf("unexpected status code %d fetching %s list", resp.StatusCode, cat)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	page := &listResponse{}
	if err := json.Unmarshal(body, page); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s list response", cat)
	}

	return page, nil
}

func (s *service) toCompletion(cat domain.Category, entry listEntry) domain.Completion {
	c := domain.Completion{
		MalID:    entry.Node.ID,
		Title:    entry.Node.Title,
		Category: cat,
		Score:    entry.ListStatus.Score,
		Episodes: entry.Node.NumEpisodes,
		Volumes:  entry.Node.NumVolumes,
		Chapters: entry.Node.NumChapters,
		Year:     entry.Node.StartSeason.Year,
	}

	// Highest resolution available: large, then medium.
	if entry.Node.MainPicture.Large != "" {
		c.ImageURL = entry.Node.MainPicture.Large
	} else if entry.Node.MainPicture.Medium != "" {
		c.ImageURL = entry.Node.MainPicture.Medium
	}

	// Manga nodes carry a start_date instead of a start_season.
	if c.Year == 0 && len(entry.Node.StartDate) >= 4 {
		if y, err := time.Parse("2006", entry.Node.StartDate[:4]); err == nil {
			c.Year = y.Year()
		}
	}

	for _, g := range entry.Node.Genres {
		c.Genres = append(c.Genres, g.Name)
	}

	if entry.ListStatus.FinishDate != "" {
		t, err := time.ParseInLocation("2006-01-02", entry.ListStatus.FinishDate, time.Local)
		if err != nil {
			s.log.Debug().Str("finish_date", entry.ListStatus.FinishDate).Int("malid", c.MalID).Msg("unparseable finish date, treating as absent")
		} else {
			c.FinishedAt = t
		}
	}

	return c
}
