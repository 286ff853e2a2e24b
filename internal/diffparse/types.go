// Package diffparse converts raw per-commit diff text into structured
// per-file change records.
package diffparse

// ChangeType classifies how a file changed within one commit.
type ChangeType int

const (
	// Modified indicates an in-place content change.
	Modified ChangeType = iota
	// Added indicates a new file.
	Added
	// Deleted indicates a removed file.
	Deleted
	// Renamed indicates a file moved to a new path.
	Renamed
	// Copied indicates a file duplicated from another path.
	Copied
)

// String returns the human-readable change type name.
func (ct ChangeType) String() string {
	switch ct {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case Copied:
		return "copied"
	case Modified:
		return "modified"
	default:
		return "modified"
	}
}

// FileChangeAnalysis describes a single file's change within one commit.
// Path is the destination path of the diff section; OldPath is populated
// only for renames and copies.
type FileChangeAnalysis struct {
	Path       string
	OldPath    string
	Type       ChangeType
	Insertions int
	Deletions  int
	IsBinary   bool
	BinarySize int64
}
