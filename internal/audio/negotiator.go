package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProbeError describes a rejected probe response.
type ProbeError struct {
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v (status %d, content type %q)", e.URL, e.Err, e.StatusCode, e.ContentType)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// IsRetryable returns true if the asset server may succeed on a retry.
func (e *ProbeError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Negotiator picks the first preferred encoding that is served and playable.
type Negotiator struct {
	cfg        Config
	player     Player
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) NegotiatorOption {
	return func(n *Negotiator) {
		n.httpClient = hc
	}
}

// WithRetries sets how often a probe answered with 5xx or 429 is repeated.
func WithRetries(max int, backoff time.Duration) NegotiatorOption {
	return func(n *Negotiator) {
		n.maxRetries = max
		n.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) NegotiatorOption {
	return func(n *Negotiator) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNegotiator creates a Negotiator. Empty config fields take defaults.
func NewNegotiator(cfg Config, player Player, opts ...NegotiatorOption) *Negotiator {
	def := DefaultConfig()
	if cfg.SoundName == "" {
		cfg.SoundName = def.SoundName
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = def.Formats
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}

	n := &Negotiator{
		cfg:          cfg,
		player:       player,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// AssetURL resolves the sound asset for ext.
func (n *Negotiator) AssetURL(ext string) (string, error) {
	return url.JoinPath(n.cfg.AssetBaseURL, "sounds", n.cfg.SoundName+"."+ext)
}

// Negotiate probes the preferred formats in order and returns the first
// playable one.
func (n *Negotiator) Negotiate(ctx context.Context) (Selection, error) {
	for _, ext := range n.cfg.Formats {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" {
			continue
		}

		if n.player != nil && !n.player.Supports(ext) {
			n.logger.Debug("player cannot decode format", "format", ext)
			continue
		}

		assetURL, err := n.AssetURL(ext)
		if err != nil {
			return Selection{}, fmt.Errorf("resolve asset: %w", err)
		}

		if err := n.probeWithRetry(ctx, assetURL); err != nil {
			n.logger.Debug("audio probe failed", "format", ext, "error", err)
			if ctx.Err() != nil {
				return Selection{}, ctx.Err()
			}
			continue
		}

		return Selection{Format: ext, URL: assetURL}, nil
	}

	return Selection{}, ErrNoPlayableFormat
}

// probeWithRetry repeats Probe with exponential backoff while the server
// answers with a retryable status.
func (n *Negotiator) probeWithRetry(ctx context.Context, assetURL string) error {
	var lastErr error
	backoff := n.retryBackoff

	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 && backoff > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			n.logger.Debug("retrying probe",
				"attempt", attempt,
				"backoff", wait,
				"url", assetURL,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}

		err := n.Probe(ctx, assetURL)
		if err == nil {
			return nil
		}
		lastErr = err

		var pe *ProbeError
		if !errors.As(err, &pe) || !pe.IsRetryable() {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Probe checks that assetURL is served as audio. HEAD is tried first; a
// server that refuses HEAD gets a one-byte ranged GET.
func (n *Negotiator) Probe(ctx context.Context, assetURL string) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.ProbeTimeout)
	defer cancel()

	status, contentType, err := n.fetch(ctx, http.MethodHead, assetURL)
	if err != nil {
		return err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, contentType, err = n.fetch(ctx, http.MethodGet, assetURL)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return &ProbeError{URL: assetURL, StatusCode: status, ContentType: contentType, Err: ErrProbeStatus}
	}
	if !isAudio(contentType) {
		return &ProbeError{URL: assetURL, StatusCode: status, ContentType: contentType, Err: ErrProbeContentType}
	}
	return nil
}

func (n *Negotiator) fetch(ctx context.Context, method, assetURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, assetURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// isAudio accepts audio/* plus the generic binary and ogg container types
// static servers commonly use for sound files.
func isAudio(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "audio/"):
		return true
	case mt == "application/octet-stream", mt == "application/ogg":
		return true
	}
	return false
}
