// Package gitai provides a minimal public API for embedding the
// attribution engine in custom tooling.
//
// Most integrations should shell out to the git-ai binary; this package
// exports only the essential types and the engine constructor for
// Go-based extensions that want to drive attribution programmatically.
package gitai

import (
	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/blame"
	"github.com/git-ai-project/git-ai/internal/config"
	"github.com/git-ai-project/git-ai/internal/engine"
	"github.com/git-ai-project/git-ai/internal/git"
)

// Core types for working with attribution records
type (
	Checkpoint           = authorship.Checkpoint
	FileAttributionEntry = authorship.FileAttributionEntry
	LineAttribution      = authorship.LineAttribution
	AttributionLog       = authorship.Log
	AgentID              = authorship.AgentID
	Kind                 = authorship.Kind
	BlameOptions         = blame.Options
	BlameResult          = blame.Result
	Config               = config.Config
)

// Author kind constants
const (
	KindHuman   = authorship.KindHuman
	KindAIAgent = authorship.KindAIAgent
)

// SchemaVersion is the attribution record format this build reads and
// writes. Records carrying any other version are rejected.
const SchemaVersion = authorship.SchemaVersion

// Engine is the per-repository attribution coordinator.
type Engine = engine.Engine

// Open builds an engine for the repository containing dir, loading
// layered configuration the same way the git-ai binary does.
func Open(dir string) (*Engine, error) {
	repo, err := git.Open(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(repo)
	if err != nil {
		return nil, err
	}
	return engine.New(repo, cfg)
}
