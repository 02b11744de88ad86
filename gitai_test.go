package gitai_test

import (
	"context"
	"testing"

	gitai "github.com/git-ai-project/git-ai"
	"github.com/git-ai-project/git-ai/internal/gittest"
)

func TestOpen(t *testing.T) {
	gittest.RequireGit(t)
	dir := gittest.InitRepo(t)

	eng, err := gitai.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if eng == nil {
		t.Fatal("expected non-nil engine")
	}

	// A fresh repository carries no attribution state yet.
	active, err := eng.Active(context.Background())
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active {
		t.Error("fresh repository reported attribution state")
	}
}

func TestOpenOutsideRepo(t *testing.T) {
	gittest.RequireGit(t)

	if _, err := gitai.Open(t.TempDir()); err == nil {
		t.Error("expected error opening a non-repository directory")
	}
}

func TestConstants(t *testing.T) {
	if gitai.SchemaVersion != "authorship/3.0.0" {
		t.Errorf("unexpected schema version %q", gitai.SchemaVersion)
	}
	if gitai.KindHuman == gitai.KindAIAgent {
		t.Error("author kinds must be distinct")
	}
}
