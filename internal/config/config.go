// Package config loads engine settings.
//
// Settings are layered: built-in defaults, then the user file at
// ~/.config/git-ai/config.yml, then the repository file at
// <gitdir>/ai/config.yml, then GIT_AI_* environment variables. Every
// loader call builds a fresh viper instance; nothing is cached in
// package state, so two repositories in one process never see each
// other's settings.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/spf13/viper"

	"github.com/git-ai-project/git-ai/internal/git"
)

// Defaults.
const (
	DefaultNotesRef    = "ai"
	DefaultRemote      = "origin"
	DefaultLockTimeout = 30 * time.Second
)

// Config holds the resolved settings for one repository.
type Config struct {
	// NotesRef is the short name of the notes ref attribution records
	// live under, i.e. refs/notes/<NotesRef>.
	NotesRef string `mapstructure:"notes-ref"`

	// Actor names the human author recorded for non-AI lines when the
	// caller does not supply one explicitly.
	Actor string `mapstructure:"actor"`

	// Remote is the default remote for notes sync.
	Remote string `mapstructure:"remote"`

	// Ignore lists gitignore-style patterns excluded from checkpoints.
	Ignore []string `mapstructure:"ignore"`

	// LockTimeout bounds how long a hook waits for the state lock.
	LockTimeout time.Duration `mapstructure:"lock-timeout"`

	// KeepEvents is how many reconciled rewrite events stay in the
	// live journal before gc moves them to the zstd archive.
	KeepEvents int `mapstructure:"keep-events"`

	// Disabled turns every hook into a no-op. Useful for bisecting
	// whether the attribution hooks are implicated in a repo problem.
	Disabled bool `mapstructure:"disabled"`

	// Telemetry enables the OpenTelemetry exporters.
	Telemetry bool `mapstructure:"telemetry"`

	matcher gitignore.Matcher
}

// Load resolves settings for repo. A missing config file at either
// layer is not an error; env vars still apply.
func Load(repo *git.Repo) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Every key needs a default: AutomaticEnv only surfaces keys viper
	// already knows about when unmarshalling into a struct.
	v.SetDefault("notes-ref", DefaultNotesRef)
	v.SetDefault("actor", "")
	v.SetDefault("remote", DefaultRemote)
	v.SetDefault("ignore", []string{})
	v.SetDefault("lock-timeout", DefaultLockTimeout)
	v.SetDefault("keep-events", 512)
	v.SetDefault("disabled", false)
	v.SetDefault("telemetry", false)

	v.SetEnvPrefix("GIT_AI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if userDir, err := os.UserConfigDir(); err == nil {
		if err := mergeFile(v, filepath.Join(userDir, "git-ai", "config.yml")); err != nil {
			return nil, err
		}
	}
	if repo != nil {
		state, err := repo.StateDir()
		if err != nil {
			return nil, err
		}
		if err := mergeFile(v, filepath.Join(state, "config.yml")); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.buildMatcher()
	return &cfg, nil
}

// Default returns the built-in settings without touching the
// filesystem or environment.
func Default() *Config {
	cfg := &Config{
		NotesRef:    DefaultNotesRef,
		Remote:      DefaultRemote,
		LockTimeout: DefaultLockTimeout,
		KeepEvents:  512,
	}
	cfg.buildMatcher()
	return cfg
}

func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	v.SetConfigFile(path)
	return v.MergeInConfig()
}

func (c *Config) buildMatcher() {
	patterns := make([]gitignore.Pattern, 0, len(c.Ignore))
	for _, raw := range c.Ignore {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(raw, nil))
	}
	c.matcher = gitignore.NewMatcher(patterns)
}

// SetIgnore replaces the ignore patterns and rebuilds the matcher.
func (c *Config) SetIgnore(patterns []string) {
	c.Ignore = patterns
	c.buildMatcher()
}

// Ignored reports whether a repo-relative path is excluded from
// checkpointing by the ignore patterns.
func (c *Config) Ignored(relPath string) bool {
	if c.matcher == nil || relPath == "" {
		return false
	}
	return c.matcher.Match(strings.Split(filepath.ToSlash(relPath), "/"), false)
}

// FullNotesRef returns the complete ref name, refs/notes/<NotesRef>.
func (c *Config) FullNotesRef() string {
	return "refs/notes/" + c.NotesRef
}

// ResolveActor returns the human author identity for new checkpoints.
// Priority: explicit value > GIT_AI_ACTOR env > config file > git
// config user.name > $USER > "unknown". Git identity is the natural
// default for a git-native tool.
func ResolveActor(ctx context.Context, repo *git.Repo, explicit string, cfg *Config) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("GIT_AI_ACTOR"); env != "" {
		return env
	}
	if cfg != nil && cfg.Actor != "" {
		return cfg.Actor
	}
	if repo != nil {
		if name, err := repo.CommitAuthorFallback(ctx); err == nil && name != "" {
			return name
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
