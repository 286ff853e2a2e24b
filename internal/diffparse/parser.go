package diffparse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Diff section marker prefixes, as emitted by git patch output.
const (
	headerPrefix      = "diff --git "
	newFilePrefix     = "new file mode "
	deletedFilePrefix = "deleted file mode "
	renameFromPrefix  = "rename from "
	renameToPrefix    = "rename to "
	copyFromPrefix    = "copy from "
	copyToPrefix      = "copy to "
	oldPathMarker     = "--- "
	newPathMarker     = "+++ "
	binaryFilesPrefix = "Binary files "
	binaryPatchPrefix = "GIT binary patch"
)

// scanBufferSize is the initial buffer for the line scanner.
const scanBufferSize = 64 * 1024

// maxLineSize bounds a single diff line; generated or minified sources
// can produce very long lines.
const maxLineSize = 4 * 1024 * 1024

// Parse reads raw diff text for one commit, possibly spanning multiple file
// sections, and returns one FileChangeAnalysis per section in
// header-encounter order. Unrecognized lines are ignored; an error is
// returned only when the underlying reader fails.
func Parse(r io.Reader) ([]FileChangeAnalysis, error) {
	var (
		changes []FileChangeAnalysis
		current *FileChangeAnalysis
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, headerPrefix) {
			changes = append(changes, FileChangeAnalysis{
				Path: destinationPath(line),
				Type: Modified,
			})
			current = &changes[len(changes)-1]

			continue
		}

		if current == nil {
			continue // Preamble before the first section.
		}

		applyLine(current, line)
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read diff text: %w", err)
	}

	return changes, nil
}

// ParseString parses raw diff text held in memory.
func ParseString(text string) []FileChangeAnalysis {
	// A strings.Reader never fails, so the error path is unreachable.
	changes, _ := Parse(strings.NewReader(text))

	return changes
}

// applyLine folds a single non-header line into the current section.
func applyLine(c *FileChangeAnalysis, line string) {
	switch {
	case strings.HasPrefix(line, newFilePrefix):
		c.Type = Added
	case strings.HasPrefix(line, deletedFilePrefix):
		c.Type = Deleted
	case strings.HasPrefix(line, renameFromPrefix):
		c.OldPath = strings.TrimPrefix(line, renameFromPrefix)
	case strings.HasPrefix(line, renameToPrefix):
		c.Type = Renamed
		c.Path = strings.TrimPrefix(line, renameToPrefix)
	case strings.HasPrefix(line, copyFromPrefix):
		c.OldPath = strings.TrimPrefix(line, copyFromPrefix)
	case strings.HasPrefix(line, copyToPrefix):
		c.Type = Copied
		c.Path = strings.TrimPrefix(line, copyToPrefix)
	case strings.HasPrefix(line, binaryFilesPrefix), strings.HasPrefix(line, binaryPatchPrefix):
		c.IsBinary = true
	case strings.HasPrefix(line, newPathMarker), strings.HasPrefix(line, oldPathMarker):
		// Path markers are not content lines.
	case strings.HasPrefix(line, "+"):
		if !c.IsBinary {
			c.Insertions++
		}
	case strings.HasPrefix(line, "-"):
		if !c.IsBinary {
			c.Deletions++
		}
	}
}

// destinationPath extracts the destination ("b/") path from a
// "diff --git a/<old> b/<new>" header line. The destination is the file's
// logical path for the section; rename/copy markers may override it later.
func destinationPath(header string) string {
	rest := strings.TrimPrefix(header, headerPrefix)

	// Split on the last " b/" so old paths containing " b/" do not confuse
	// the parse. Paths with embedded spaces remain best-effort.
	idx := strings.LastIndex(rest, " b/")
	if idx < 0 {
		return strings.TrimSpace(rest)
	}

	return rest[idx+len(" b/"):]
}
