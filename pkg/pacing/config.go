package pacing

import (
	"fmt"
	"time"

	"igharvest/pkg/config"
)

// Kind identifies the type of remote operation being paced.
type Kind string

const (
	KindLogin      Kind = "login"
	KindProfile    Kind = "profile"
	KindPostPage   Kind = "post_page"
	KindPostDetail Kind = "post_detail"
	// KindAccount paces the switch from one scraped account to the next.
	KindAccount Kind = "account"
)

// RequestContext describes a single paced call.
type RequestContext struct {
	Kind   Kind
	Target string
}

func (rc RequestContext) String() string {
	if rc.Target == "" {
		return string(rc.Kind)
	}
	return fmt.Sprintf("%s:%s", rc.Kind, rc.Target)
}

func (rc RequestContext) fields() map[string]interface{} {
	return map[string]interface{}{
		"kind":   string(rc.Kind),
		"target": rc.Target,
	}
}

// Range is an inclusive delay range.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Config holds the tunables of a Policy.
type Config struct {
	Default Range
	Ranges  map[Kind]Range
	Floor   time.Duration

	Cooldown     time.Duration
	ItemCooldown time.Duration

	ProgressEvery int
	PauseEvery    int
	PauseDuration time.Duration

	Adaptive    bool
	MaxCooldown time.Duration
}

// DefaultConfig mirrors config.DefaultConfig().Pacing.
func DefaultConfig() Config {
	return FromConfig(config.DefaultConfig().Pacing)
}

// FromConfig converts the file/env configuration into a policy Config.
func FromConfig(c config.PacingConfig) Config {
	ranges := make(map[Kind]Range, len(c.Ranges))
	for kind, r := range c.Ranges {
		ranges[Kind(kind)] = Range{Min: r.Min, Max: r.Max}
	}
	return Config{
		Default:       Range{Min: c.Default.Min, Max: c.Default.Max},
		Ranges:        ranges,
		Floor:         c.Floor,
		Cooldown:      c.Cooldown,
		ItemCooldown:  c.ItemCooldown,
		ProgressEvery: c.ProgressEvery,
		PauseEvery:    c.PauseEvery,
		PauseDuration: c.PauseDuration,
		Adaptive:      c.Adaptive,
		MaxCooldown:   c.MaxCooldown,
	}
}

// RangeFor returns the delay range for kind, falling back to Default.
func (c Config) RangeFor(kind Kind) Range {
	if r, ok := c.Ranges[kind]; ok {
		return r
	}
	return c.Default
}
