package twitter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

func testConfig() *domain.Config {
	return &domain.Config{
		TwitterConsumerKey:       "ck",
		TwitterConsumerSecret:    "cs",
		TwitterAccessToken:       "at",
		TwitterAccessTokenSecret: "as",
	}
}

func TestFormatText(t *testing.T) {
	tests := []struct {
		name  string
		score int
		want  string
	}{
		{"score 10", 10, "finished Frieren\n10/10 🌟"},
		{"score 9", 9, "finished Frieren\n9/10 🌟"},
		{"score 8", 8, "finished Frieren\n8/10 😍"},
		{"score 7", 7, "finished Frieren\n7/10 👍"},
		{"score 6", 6, "finished Frieren\n6/10 😊"},
		{"score 5", 5, "finished Frieren\n5/10 😐"},
		{"score 4", 4, "finished Frieren\n4/10 😔"},
		{"score 1", 1, "finished Frieren\n1/10 😔"},
		{"unscored", 0, "finished Frieren"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatText(domain.Completion{Title: "Frieren", Score: tt.score})
			if got != tt.want {
				t.Errorf("FormatText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPublish_TextOnlySuccess(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1450","text":"finished X"}}`))
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop(), testConfig(), WithTweetURL(srv.URL))
	id, err := c.Publish(context.Background(), domain.Completion{Title: "X", Score: 9}, "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "1450" {
		t.Errorf("tweet id = %q, want 1450", id)
	}

	var req tweetRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatal(err)
	}
	if req.Text != "finished X\n9/10 🌟" {
		t.Errorf("tweet text = %q", req.Text)
	}
	if req.Media != nil {
		t.Error("text-only publish must not carry media ids")
	}
}

func TestPublish_RateLimitedRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"77","text":"t"}}`))
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop(), testConfig(), WithTweetURL(srv.URL), WithBackoff(time.Millisecond))
	id, err := c.Publish(context.Background(), domain.Completion{Title: "X"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "77" {
		t.Errorf("tweet id = %q, want 77", id)
	}
	if calls.Load() != 2 {
		t.Errorf("create calls = %d, want 2 (single retry)", calls.Load())
	}
}

func TestPublish_RateLimitedTwiceGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop(), testConfig(), WithTweetURL(srv.URL), WithBackoff(time.Millisecond))
	_, err := c.Publish(context.Background(), domain.Completion{Title: "X"}, "")
	if err == nil {
		t.Fatal("expected error after exhausted retry")
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited in chain", err)
	}
	if calls.Load() != 2 {
		t.Errorf("create calls = %d, want exactly 2", calls.Load())
	}
}

func TestPublish_UnauthorizedFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop(), testConfig(), WithTweetURL(srv.URL), WithBackoff(time.Millisecond))
	_, err := c.Publish(context.Background(), domain.Completion{Title: "X"}, "")
	if !errors.Is(err, domain.ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("create calls = %d, want 1 (no retry)", calls.Load())
	}
}

func TestPublish_WithMedia(t *testing.T) {
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type = %q, want multipart", r.Header.Get("Content-Type"))
		}
		w.Write([]byte(`{"media_id_string":"mid-9"}`))
	}))
	defer upload.Close()

	var gotBody []byte
	tweets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"5","text":"t"}}`))
	}))
	defer tweets.Close()

	path := filepath.Join(t.TempDir(), "cover.jpg")
	if err := os.WriteFile(path, []byte("jpegbytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(zerolog.Nop(), testConfig(), WithTweetURL(tweets.URL), WithUploadURL(upload.URL))
	if _, err := c.Publish(context.Background(), domain.Completion{Title: "X"}, path); err != nil {
		t.Fatal(err)
	}

	var req tweetRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatal(err)
	}
	if req.Media == nil || len(req.Media.MediaIDs) != 1 || req.Media.MediaIDs[0] != "mid-9" {
		t.Errorf("media ids = %+v, want [mid-9]", req.Media)
	}
}

func TestPublish_UploadFailureDegradesToTextOnly(t *testing.T) {
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upload.Close()

	var gotBody []byte
	tweets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"6","text":"t"}}`))
	}))
	defer tweets.Close()

	path := filepath.Join(t.TempDir(), "cover.jpg")
	if err := os.WriteFile(path, []byte("jpegbytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(zerolog.Nop(), testConfig(), WithTweetURL(tweets.URL), WithUploadURL(upload.URL))
	id, err := c.Publish(context.Background(), domain.Completion{Title: "X"}, path)
	if err != nil {
		t.Fatalf("publish must not abort on upload failure: %v", err)
	}
	if id != "6" {
		t.Errorf("tweet id = %q, want 6", id)
	}

	var req tweetRequest
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatal(err)
	}
	if req.Media != nil {
		t.Error("degraded publish must not carry media ids")
	}
}

func TestPublish_MissingTweetIDIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(zerolog.Nop(), testConfig(), WithTweetURL(srv.URL))
	if _, err := c.Publish(context.Background(), domain.Completion{Title: "X"}, ""); err == nil {
		t.Fatal("a response without an id is not a confirmed publish")
	}
}
