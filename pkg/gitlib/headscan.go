package gitlib

import (
	"bytes"
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// binarySniffLen is how many leading bytes are inspected for a NUL byte
// when classifying a blob as binary, matching git's own heuristic.
const binarySniffLen = 8000

// HeadFileInfo describes one file in the HEAD tree.
type HeadFileInfo struct {
	Lines  int
	Size   int64
	Binary bool
}

// HeadFileSnapshot walks the HEAD tree and returns per-path line counts
// and sizes. Binary files carry a zero line count and their blob size.
func (r *Repository) HeadFileSnapshot() (map[string]HeadFileInfo, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}

	commit, err := r.LookupCommit(head)
	if err != nil {
		return nil, err
	}
	defer commit.Free()

	tree, err := commit.tree()
	if err != nil {
		return nil, err
	}
	defer tree.Free()

	files := make(map[string]HeadFileInfo)

	var walkErr error

	err = tree.Walk(func(root string, entry *git2go.TreeEntry) error {
		if entry.Type != git2go.ObjectBlob {
			return nil
		}

		blob, lookupErr := r.repo.LookupBlob(entry.Id)
		if lookupErr != nil {
			walkErr = fmt.Errorf("lookup blob %s: %w", entry.Id, lookupErr)

			return walkErr
		}

		data := blob.Contents()
		info := HeadFileInfo{Size: blob.Size()}

		if isBinaryData(data) {
			info.Binary = true
		} else {
			info.Lines = countLines(data)
		}

		files[root+entry.Name] = info

		blob.Free()

		return nil
	})
	if err != nil {
		if walkErr != nil {
			return nil, walkErr
		}

		return nil, fmt.Errorf("walk HEAD tree: %w", err)
	}

	return files, nil
}

// isBinaryData reports whether the blob looks binary.
func isBinaryData(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// countLines counts newline-terminated lines, treating a trailing partial
// line as a full line.
func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	count := strings.Count(string(data), "\n")

	if data[len(data)-1] != '\n' {
		count++
	}

	return count
}
