package filestate

// LifecycleCategory classifies a tracked path after reconstruction.
type LifecycleCategory int

const (
	// Stable means the table key equals the tip path and the file exists.
	Stable LifecycleCategory = iota
	// Resurrected means the file exists but its key differs from its tip
	// path, i.e. its identity persisted through a rename chain.
	Resurrected
	// Deleted means the file is flagged non-existent.
	Deleted
)

// LifecycleAnalysis holds per-category counts and rates over all tracked paths.
type LifecycleAnalysis struct {
	Tracked     int
	Stable      int
	Resurrected int
	Deleted     int

	StableRate      float64
	ResurrectedRate float64
	DeletedRate     float64
}

// Classify returns the lifecycle category for a single state under its
// table key.
func Classify(key string, state FileState) LifecycleCategory {
	if !state.Exists {
		return Deleted
	}

	if key != state.CurrentPath {
		return Resurrected
	}

	return Stable
}

// AnalyzeLifecycle classifies every tracked path and returns per-category
// counts and rates.
func (r *Reconstructor) AnalyzeLifecycle() LifecycleAnalysis {
	analysis := LifecycleAnalysis{Tracked: len(r.states)}

	for key, state := range r.states {
		switch Classify(key, *state) {
		case Stable:
			analysis.Stable++
		case Resurrected:
			analysis.Resurrected++
		case Deleted:
			analysis.Deleted++
		}
	}

	if analysis.Tracked > 0 {
		total := float64(analysis.Tracked)
		analysis.StableRate = float64(analysis.Stable) / total
		analysis.ResurrectedRate = float64(analysis.Resurrected) / total
		analysis.DeletedRate = float64(analysis.Deleted) / total
	}

	return analysis
}
