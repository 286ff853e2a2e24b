package report

import (
	"time"

	"github.com/deeprave/gstats/internal/filestate"
	"github.com/deeprave/gstats/internal/scan"
)

// Snapshot is the exportable result of one scan run. It round-trips through
// any persist codec.
type Snapshot struct {
	GeneratedAt  time.Time
	RepoPath     string
	Commits      int
	Warnings     []string
	Contributors []scan.ContributorStats
	Files        map[string]filestate.FileState
	Lifecycle    filestate.LifecycleAnalysis
	Languages    []LanguageStats
}

// BuildSnapshot assembles a snapshot from the scan outputs. Any of the
// inputs may be empty when the corresponding unit did not run.
func BuildSnapshot(repoPath string, commits int, warnings []string,
	contributors []scan.ContributorStats, recon *filestate.Reconstructor,
) *Snapshot {
	snap := &Snapshot{
		GeneratedAt:  time.Now().UTC(),
		RepoPath:     repoPath,
		Commits:      commits,
		Warnings:     warnings,
		Contributors: contributors,
	}

	if recon != nil {
		snap.Files = recon.AllFileStates()
		snap.Lifecycle = recon.AnalyzeLifecycle()
		snap.Languages = LanguageRollup(snap.Files)
	}

	return snap
}
