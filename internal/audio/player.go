package audio

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// CommandPlayer plays assets with an external command; the asset URL is
// appended as the last argument (e.g. ["mpv", "--no-video"]).
type CommandPlayer struct {
	command []string
	formats []string
}

// NewCommandPlayer creates a CommandPlayer. An empty formats list means the
// command is trusted to play anything.
func NewCommandPlayer(command []string, formats []string) (*CommandPlayer, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("player command is empty")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("player command %q: %w", command[0], err)
	}

	norm := make([]string, 0, len(formats))
	for _, f := range formats {
		norm = append(norm, strings.ToLower(strings.TrimPrefix(f, ".")))
	}
	return &CommandPlayer{command: slices.Clone(command), formats: norm}, nil
}

// Supports reports whether ext is in the configured format list.
func (p *CommandPlayer) Supports(ext string) bool {
	if len(p.formats) == 0 {
		return true
	}
	return slices.Contains(p.formats, strings.ToLower(ext))
}

// Play runs the command and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context, url string) error {
	args := append(slices.Clone(p.command[1:]), url)
	out, err := exec.CommandContext(ctx, p.command[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w: %s", p.command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
