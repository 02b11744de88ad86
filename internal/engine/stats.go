package engine

import (
	"context"
	"time"

	"github.com/git-ai-project/git-ai/internal/authorship"
)

// StatsOptions bound an attribution stats query.
type StatsOptions struct {
	// Rev is the starting revision; empty means HEAD.
	Rev string

	// Since excludes commits older than this time. Zero means no bound.
	Since time.Time

	// Limit caps how many commits are examined. Zero means no cap.
	Limit int
}

// CommitStats is the attested line breakdown of one commit.
type CommitStats struct {
	SHA        string         `json:"sha"`
	Subject    string         `json:"subject"`
	AILines    int            `json:"ai_lines"`
	HumanLines int            `json:"human_lines"`
	Sessions   int            `json:"sessions"`
	ByAuthor   map[string]int `json:"by_author"`
}

// StatsReport aggregates attested lines over a commit range.
type StatsReport struct {
	Commits    []CommitStats  `json:"commits"`
	TotalAI    int            `json:"total_ai_lines"`
	TotalHuman int            `json:"total_human_lines"`
	ByAuthor   map[string]int `json:"by_author"`

	// Agents maps author ids to the session identity their notes
	// recorded, for display layers.
	Agents map[string]authorship.AgentID `json:"agents,omitempty"`
}

// Stats walks the commit range and tallies attested lines per author
// from the attribution notes. Commits without a note are skipped.
func (e *Engine) Stats(ctx context.Context, opts StatsOptions) (*StatsReport, error) {
	rev := opts.Rev
	if rev == "" {
		rev = "HEAD"
	}
	shas, err := e.repo.RevList(ctx, rev, opts.Since, opts.Limit)
	if err != nil {
		return nil, err
	}

	annotated, err := e.notes.List(ctx)
	if err != nil {
		return nil, err
	}
	var withNotes []string
	for _, sha := range shas {
		if _, ok := annotated[sha]; ok {
			withNotes = append(withNotes, sha)
		}
	}

	report := &StatsReport{ByAuthor: map[string]int{}, Agents: map[string]authorship.AgentID{}}
	if len(withNotes) == 0 {
		return report, nil
	}
	logs, err := e.notes.LoadMany(ctx, withNotes)
	if err != nil {
		return nil, err
	}

	for _, sha := range withNotes {
		log := logs[sha]
		if log == nil {
			continue
		}
		subject, err := e.repo.CommitSubject(ctx, sha)
		if err != nil {
			return nil, err
		}
		cs := CommitStats{
			SHA:      sha,
			Subject:  subject,
			Sessions: len(log.Metadata.Prompts),
			ByAuthor: log.AcceptedLineCounts(),
		}
		for id, rec := range log.Metadata.Prompts {
			report.Agents[id] = rec.AgentID
		}
		for id, n := range cs.ByAuthor {
			report.ByAuthor[id] += n
			if id == authorship.HumanAuthorID {
				cs.HumanLines += n
			} else {
				cs.AILines += n
			}
		}
		report.TotalAI += cs.AILines
		report.TotalHuman += cs.HumanLines
		report.Commits = append(report.Commits, cs)
	}
	return report, nil
}

// Show resolves rev and returns its attribution record, or nil when the
// commit has no note.
func (e *Engine) Show(ctx context.Context, rev string) (string, *authorship.Log, error) {
	sha, err := e.repo.ResolveCommit(rev)
	if err != nil {
		return "", nil, err
	}
	log, err := e.notes.Get(ctx, sha)
	return sha, log, err
}
