package audio

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNoPlayableFormat = errors.New("no playable audio format")
	ErrProbeStatus      = errors.New("unexpected probe status")
	ErrProbeContentType = errors.New("asset is not audio")
)

// Config configures negotiation and playback.
type Config struct {
	AssetBaseURL string        // Base URL the sounds/ directory hangs off
	SoundName    string        // Asset name without extension
	Formats      []string      // Preferred encodings, in order
	ProbeTimeout time.Duration // Bound on each probe request
	PlayTimeout  time.Duration // Bound on one playback
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SoundName:    "new-order",
		Formats:      []string{"mp3", "ogg", "wav"},
		ProbeTimeout: 2 * time.Second,
		PlayTimeout:  30 * time.Second,
	}
}

// Selection is the negotiated asset.
type Selection struct {
	Format string
	URL    string
}

// Player plays an audio asset.
type Player interface {
	// Supports reports whether the player can decode ext (e.g. "ogg").
	Supports(ext string) bool

	// Play plays the asset at url and returns when playback ends.
	Play(ctx context.Context, url string) error
}
