package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type catalogFile struct {
	Defaults   Config   `koanf:"defaults"`
	Assistants []Config `koanf:"assistants"`
}

// Catalog is an in-memory Resolver, usually loaded from a YAML file.
type Catalog struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Config
}

func NewCatalog(configs ...Config) *Catalog {
	c := &Catalog{byID: make(map[string]Config, len(configs))}
	for _, cfg := range configs {
		c.Put(cfg)
	}
	return c
}

// LoadCatalog reads assistants from a YAML file. Values under "defaults"
// fill empty voice and prompt fields and may be overridden with
// ASSISTANT_-prefixed environment variables (ASSISTANT_VOICE,
// ASSISTANT_SYSTEM_PROMPT). An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	k := koanf.New(".")
	if strings.TrimSpace(path) != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("assistant catalog %q: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("ASSISTANT_", ".", func(s string) string {
		return "defaults." + strings.ToLower(strings.TrimPrefix(s, "ASSISTANT_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("assistant catalog env: %w", err)
	}

	var parsed catalogFile
	if err := k.Unmarshal("", &parsed); err != nil {
		return nil, fmt.Errorf("assistant catalog decode: %w", err)
	}

	base := time.Now().UTC()
	out := NewCatalog()
	for i, a := range parsed.Assistants {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return nil, fmt.Errorf("assistant catalog: entry %d has no id", i)
		}
		if _, dup := out.byID[a.ID]; dup {
			return nil, fmt.Errorf("assistant catalog: duplicate id %q", a.ID)
		}
		if a.Voice == "" {
			a.Voice = parsed.Defaults.Voice
		}
		if a.SystemPrompt == "" {
			a.SystemPrompt = parsed.Defaults.SystemPrompt
		}
		if a.APIKey == "" {
			a.APIKey = parsed.Defaults.APIKey
		}
		// Declaration order is creation order.
		a.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		out.Put(a)
	}
	return out, nil
}

// Put inserts or replaces an assistant. New ids are appended to the list
// order.
func (c *Catalog) Put(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[cfg.ID]; !ok {
		c.order = append(c.order, cfg.ID)
	}
	c.byID[cfg.ID] = cloneConfig(cfg)
}

func (c *Catalog) Get(_ context.Context, id string) (Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.byID[id]
	if !ok {
		return Config{}, ErrNotFound
	}
	return cloneConfig(cfg), nil
}

func (c *Catalog) List(_ context.Context) ([]Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Config, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneConfig(c.byID[id]))
	}
	return out, nil
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func cloneConfig(in Config) Config {
	out := in
	out.Functions = append([]string(nil), in.Functions...)
	return out
}
