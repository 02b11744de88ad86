// Package identity resolves attestation author ids to display
// identities. A builtin table covers the well-known AI tools; a
// repository's authors.toml extends or overrides it.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/git-ai-project/git-ai/internal/authorship"
)

// FileName is the overrides file kept under the repository state dir.
const FileName = "authors.toml"

// Identity is how one author renders in blame and stats output.
type Identity struct {
	Name  string
	Color string // hex color; empty means the renderer's default
	Tool  string
	Model string
}

// Override customizes the rendering of one author id or tool.
type Override struct {
	Name  string `toml:"name"`
	Color string `toml:"color"`
}

// Overrides is the authors.toml document: entries keyed by attestation
// author id under [authors], and by agent tool id under [tools].
type Overrides struct {
	Authors map[string]Override `toml:"authors"`
	Tools   map[string]Override `toml:"tools"`
}

// BuiltinTools maps agent tool ids (what integrations send in
// AgentID.Tool) to display defaults.
var BuiltinTools = map[string]Override{
	"claude-code":    {Name: "Claude Code", Color: "#D97757"},
	"github-copilot": {Name: "GitHub Copilot", Color: "#8957E5"},
	"amp":            {Name: "Amp", Color: "#F34E3F"},
	"cursor":         {Name: "Cursor", Color: "#6E56CF"},
	"windsurf":       {Name: "Windsurf", Color: "#0EA5E9"},
	"gemini":         {Name: "Gemini CLI", Color: "#4285F4"},
	"codex":          {Name: "Codex CLI", Color: "#10A37F"},
	"aider":          {Name: "Aider", Color: "#2ECC71"},
}

// Resolver looks up identities against the overrides and the builtin
// table.
type Resolver struct {
	overrides Overrides
}

// Load reads authors.toml from stateDir. A missing file is fine: the
// resolver falls back to the builtin table alone.
func Load(stateDir string) (*Resolver, error) {
	path := filepath.Join(stateDir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Resolver{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}
	var o Overrides
	if err := toml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return &Resolver{overrides: o}, nil
}

// Resolve returns the identity authorID renders as. agent is the
// session recorded in the log's prompt metadata, when known. humanName
// labels the human pseudo-author; blame and stats pass the commit
// author here.
//
// Precedence: [authors.<id>] override, then [tools.<tool>] override,
// then the builtin table, then the raw tool id, then the author id.
func (r *Resolver) Resolve(authorID string, agent *authorship.AgentID, humanName string) Identity {
	if authorID == "" || authorID == authorship.HumanAuthorID {
		name := humanName
		if name == "" {
			name = authorship.HumanAuthorID
		}
		return Identity{Name: name}
	}

	id := Identity{Name: authorID}
	if agent != nil {
		id.Tool, id.Model = agent.Tool, agent.Model
		tool := strings.ToLower(agent.Tool)
		if o, ok := r.overrides.Tools[tool]; ok {
			id.apply(o)
		} else if o, ok := BuiltinTools[tool]; ok {
			id.apply(o)
		} else if agent.Tool != "" {
			id.Name = agent.Tool
		}
	}
	if o, ok := r.overrides.Authors[authorID]; ok {
		id.apply(o)
	}
	return id
}

// ForLog resolves every author the log mentions, including authors that
// appear in attestations without prompt metadata.
func (r *Resolver) ForLog(log *authorship.Log, humanName string) map[string]Identity {
	out := map[string]Identity{}
	if log == nil {
		return out
	}
	for id, rec := range log.Metadata.Prompts {
		agent := rec.AgentID
		out[id] = r.Resolve(id, &agent, humanName)
	}
	for _, f := range log.Attestations {
		for _, e := range f.Entries {
			if _, ok := out[e.AuthorID]; !ok {
				out[e.AuthorID] = r.Resolve(e.AuthorID, nil, humanName)
			}
		}
	}
	return out
}

func (id *Identity) apply(o Override) {
	if o.Name != "" {
		id.Name = o.Name
	}
	if o.Color != "" {
		id.Color = o.Color
	}
}
