// Package resolver turns a public video slug into an embed URL by calling
// the third-party embed API with the video's details and its owner's ad
// settings.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"proxyplayer/internal/models"
	"proxyplayer/internal/store"
)

const (
	// DefaultEndpoint is the embed API the original deployment talks to.
	DefaultEndpoint = "https://gdplayer.vip/api/video"

	// DefaultTimeout bounds the whole outbound call.
	DefaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of the upstream body is read.
	maxResponseBytes = 1 << 20
)

// ErrNotFound is returned when no video has the requested slug.
var ErrNotFound = errors.New("video not found")

// UpstreamError reports a failed call to the embed API: a transport
// error, a timeout or a non-2xx status.
type UpstreamError struct {
	Status int // 0 when no response arrived
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("embed api: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("embed api request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// BadResponseError reports an embed API reply without data.embed_url.
type BadResponseError struct {
	Body string // truncated raw reply, for diagnostics
}

func (e *BadResponseError) Error() string { return "invalid embed api response" }

// VideoSource looks videos up by slug.
type VideoSource interface {
	FindBySlug(ctx context.Context, slug string) (*models.Video, error)
}

// SettingsSource returns a user's effective video settings, or nil.
type SettingsSource interface {
	LatestVideoSettings(ctx context.Context, userID int64) (*models.VideoSettings, error)
}

// Config configures the outbound call.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Service resolves slugs to embed URLs.
type Service struct {
	videos   VideoSource
	settings SettingsSource
	client   *http.Client
	endpoint string
}

// New creates a Service. Zero Config fields take the defaults.
func New(videos VideoSource, settings SettingsSource, cfg Config) *Service {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Service{
		videos:   videos,
		settings: settings,
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: cfg.Endpoint,
	}
}

// Request is the payload sent to the embed API. Nil fields are left out
// of the form body.
type Request struct {
	ID       int64
	FileID   string
	Title    string
	Subtitle *string
	AdURL    *string
	Domains  *string
}

// Form encodes r as the embed API's form body.
func (r Request) Form() url.Values {
	v := url.Values{}
	v.Set("id", strconv.FormatInt(r.ID, 10))
	v.Set("file_id", r.FileID)
	v.Set("title", r.Title)
	for k, p := range map[string]*string{"subtitle": r.Subtitle, "ad_url": r.AdURL, "domains": r.Domains} {
		if p != nil {
			v.Set(k, *p)
		}
	}
	return v
}

// Lookup finds the video for slug and builds the upstream request from it
// and the owner's latest settings. A storage failure is returned as is.
func (s *Service) Lookup(ctx context.Context, slug string) (*models.Video, Request, error) {
	v, err := s.videos.FindBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Request{}, ErrNotFound
	}
	if err != nil {
		return nil, Request{}, err
	}

	vs, err := s.settings.LatestVideoSettings(ctx, v.UserID)
	if err != nil {
		return nil, Request{}, err
	}

	req := Request{ID: v.ID, FileID: v.FileID, Title: v.Title, Subtitle: v.Subtitle}
	if vs != nil {
		req.AdURL, req.Domains = vs.AdURL, vs.Domains
	}
	return v, req, nil
}

// Resolve returns the embed URL for slug. An unknown slug fails with
// ErrNotFound before any outbound call is made.
func (s *Service) Resolve(ctx context.Context, slug string) (string, error) {
	_, req, err := s.Lookup(ctx, slug)
	if err != nil {
		return "", err
	}
	return s.Call(ctx, req)
}

type apiResponse struct {
	Data struct {
		EmbedURL string `json:"embed_url"`
	} `json:"data"`
}

// Call posts req to the embed API and extracts data.embed_url.
func (s *Service) Call(ctx context.Context, req Request) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(req.Form().Encode()))
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	slog.Debug("embed api call", "video_id", req.ID, "status", resp.StatusCode, "duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{Status: resp.StatusCode}
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Data.EmbedURL == "" {
		return "", &BadResponseError{Body: truncate(string(body), 512)}
	}
	return out.Data.EmbedURL, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
