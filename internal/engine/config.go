package engine

import (
	"time"

	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/transform"
	"github.com/orgloop/engine/internal/wal"
)

// Config is the fully-resolved, env-substituted engine configuration
// (spec.md §6 env-var references are expected to already be resolved by
// the time a Config reaches Engine.Start).
type Config struct {
	DataDir       string // bus and checkpoint files live under DataDir/wal and DataDir/checkpoints
	ListenAddr    string // default 127.0.0.1:4800
	Fsync         wal.FsyncPolicy
	DrainTimeout  time.Duration // default 30s, spec.md §4.9
	CompactTick   time.Duration // default 10m, SPEC_FULL.md supplemented feature
	CompactMaxAge time.Duration // default 7 * 24h
	CompactMinWAL int64         // default 1 GiB

	Sources []model.SourceSpec
	Actors  []model.ActorSpec
	Loggers []model.LoggerSpec
	Routes  []model.RouteSpec

	Capabilities map[string]transform.Capability
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:4800"
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.CompactTick <= 0 {
		c.CompactTick = 10 * time.Minute
	}
	if c.CompactMaxAge <= 0 {
		c.CompactMaxAge = 7 * 24 * time.Hour
	}
	if c.CompactMinWAL <= 0 {
		c.CompactMinWAL = 1 << 30
	}
	return c
}
