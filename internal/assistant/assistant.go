// Package assistant resolves the per-assistant settings a voice session is
// configured from: voice, instructions, enabled functions and credential.
package assistant

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

const (
	// DemoID selects the first public assistant, or the first assistant at
	// all when none is public.
	DemoID = "demo"

	DefaultVoice        = "alloy"
	DefaultSystemPrompt = "You are a helpful voice assistant."
)

var ErrNotFound = errors.New("assistant not found")

// Voices lists the voice identifiers accepted by the realtime API.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// Config is the immutable snapshot a session is built from. It is re-read
// on every (re)connect.
type Config struct {
	ID           string   `koanf:"id"`
	Name         string   `koanf:"name"`
	Voice        string   `koanf:"voice"`
	SystemPrompt string   `koanf:"system_prompt"`
	Functions    []string `koanf:"functions"`
	APIKey       string   `koanf:"api_key"`
	Public       bool     `koanf:"public"`
	// SheetID names the transcript spreadsheet. Empty disables transcript
	// logging for the assistant.
	SheetID   string    `koanf:"google_sheet_id"`
	CreatedAt time.Time `koanf:"-"`
}

// EffectiveVoice returns Voice when it is a supported voice, DefaultVoice
// otherwise.
func (c Config) EffectiveVoice() string {
	v := strings.ToLower(strings.TrimSpace(c.Voice))
	if IsSupportedVoice(v) {
		return v
	}
	return DefaultVoice
}

func (c Config) EffectivePrompt() string {
	if p := strings.TrimSpace(c.SystemPrompt); p != "" {
		return c.SystemPrompt
	}
	return DefaultSystemPrompt
}

// Credential returns the assistant's own key, or fallback when it has none.
func (c Config) Credential(fallback string) string {
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return k
	}
	return strings.TrimSpace(fallback)
}

func IsSupportedVoice(v string) bool {
	return slices.Contains(Voices, v)
}

// Resolver looks up assistant configurations.
type Resolver interface {
	Get(ctx context.Context, id string) (Config, error)
	// List returns every assistant in creation order.
	List(ctx context.Context) ([]Config, error)
}

// Resolve looks id up in r, applying the demo fallback.
func Resolve(ctx context.Context, r Resolver, id string) (Config, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Config{}, ErrNotFound
	}
	if id != DemoID {
		return r.Get(ctx, id)
	}

	all, err := r.List(ctx)
	if err != nil {
		return Config{}, err
	}
	for _, a := range all {
		if a.Public {
			return a, nil
		}
	}
	if len(all) > 0 {
		return all[0], nil
	}
	return Config{}, ErrNotFound
}
