package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

const (
	defaultTweetURL  = "https://api.twitter.com/2/tweets"
	defaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	defaultBackoff   = 5 * time.Minute
)

// Client posts completion tweets with OAuth1 user-context signing. It does
// not mutate tracking state; the controller marks ids published only after
// Publish returns a tweet id.
type Client struct {
	log        zerolog.Logger
	httpClient *http.Client
	tweetURL   string
	uploadURL  string
	backoff    time.Duration
}

var _ domain.Publisher = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithTweetURL overrides the create-tweet endpoint.
func WithTweetURL(url string) Option {
	return func(c *Client) { c.tweetURL = url }
}

// WithUploadURL overrides the media upload endpoint.
func WithUploadURL(url string) Option {
	return func(c *Client) { c.uploadURL = url }
}

// WithBackoff overrides the rate-limit backoff interval.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// NewClient creates a Twitter client signing with preexisting user tokens.
func NewClient(log zerolog.Logger, cfg *domain.Config, opts ...Option) *Client {
	conf := oauth1.NewConfig(cfg.TwitterConsumerKey, cfg.TwitterConsumerSecret)
	token := oauth1.NewToken(cfg.TwitterAccessToken, cfg.TwitterAccessTokenSecret)

	httpClient := conf.Client(oauth1.NoContext, token)
	httpClient.Timeout = 30 * time.Second

	c := &Client{
		log:        log.With().Str("module", "twitter").Logger(),
		httpClient: httpClient,
		tweetURL:   defaultTweetURL,
		uploadURL:  defaultUploadURL,
		backoff:    defaultBackoff,
	}
	if cfg.RateLimitBackoff > 0 {
		c.backoff = cfg.RateLimitBackoff
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FormatText builds the deterministic tweet text for a completion.
func FormatText(c domain.Completion) string {
	if c.Score > 0 {
		return fmt.Sprintf("finished %s\n%d/10 %s", c.Title, c.Score, scoreEmoji(c.Score))
	}
	return fmt.Sprintf("finished %s", c.Title)
}

func scoreEmoji(score int) string {
	switch {
	case score >= 9:
		return "🌟"
	case score >= 8:
		return "😍"
	case score >= 7:
		return "👍"
	case score >= 6:
		return "😊"
	case score >= 5:
		return "😐"
	}
	return "😔"
}

// Publish posts a tweet for c, uploading the image at imagePath first when
// present. An upload failure degrades to a text-only tweet. A rate-limited
// create is retried exactly once after the backoff interval; all other
// failures are returned immediately.
func (c *Client) Publish(ctx context.Context, comp domain.Completion, imagePath string) (string, error) {
	text := FormatText(comp)

	var mediaIDs []string
	if imagePath != "" {
		mediaID, err := c.uploadMedia(ctx, imagePath)
		if err != nil {
			c.log.Error().Err(err).Str("path", imagePath).Msg("media upload failed, posting text-only")
		} else {
			mediaIDs = []string{mediaID}
			c.log.Info().Str("media_id", mediaID).Msg("image uploaded")
		}
	}

	tweetID, err := c.createTweet(ctx, text, mediaIDs)
	if err == nil {
		c.log.Info().Str("tweet_id", tweetID).Str("title", comp.Title).Msg("tweet posted")
		return tweetID, nil
	}

	if !errors.Is(err, domain.ErrRateLimited) {
		return "", err
	}

	c.log.Warn().Dur("backoff", c.backoff).Msg("rate limited, waiting before single retry")
	select {
	case <-time.After(c.backoff):
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "canceled while waiting out rate limit")
	}

	tweetID, err = c.createTweet(ctx, text, mediaIDs)
	if err != nil {
		return "", errors.Wrap(err, "retry after rate limit failed")
	}

	c.log.Info().Str("tweet_id", tweetID).Str("title", comp.Title).Msg("tweet posted after rate limit wait")
	return tweetID, nil
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (c *Client) createTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	payload := tweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &tweetMedia{MediaIDs: mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal tweet payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tweetURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create tweet request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send tweet request")
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, "create tweet"); err != nil {
		return "", err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read tweet response")
	}

	tr := &tweetResponse{}
	if err := json.Unmarshal(respBody, tr); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal tweet response")
	}
	if tr.Data.ID == "" {
		return "", fmt.Errorf("tweet response carried no id")
	}

	return tr.Data.ID, nil
}

type uploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

func (c *Client) uploadMedia(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open media file %s", path)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", errors.Wrap(err, "failed to create multipart field")
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", errors.Wrap(err, "failed to copy media bytes")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "failed to finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return "", errors.Wrap(err, "failed to create upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send upload request")
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, "media upload"); err != nil {
		return "", err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read upload response")
	}

	ur := &uploadResponse{}
	if err := json.Unmarshal(respBody, ur); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal upload response")
	}
	if ur.MediaIDString == "" {
		return "", fmt.Errorf("upload response carried no media id")
	}

	return ur.MediaIDString, nil
}

func classifyStatus(code int, op string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return errors.Wrap(domain.ErrRateLimited, op)
	case code == http.StatusUnauthorized:
		return errors.Wrap(domain.ErrAuthFailed, op)
	case code == http.StatusForbidden:
		return errors.Wrap(domain.ErrAccessDenied, op)
	}
	return fmt.Errorf("%s failed with status %d", op, code)
}
