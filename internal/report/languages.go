package report

import (
	"path"
	"sort"

	"github.com/src-d/enry/v2"

	"github.com/deeprave/gstats/internal/filestate"
)

// otherLanguage buckets files enry cannot classify from their name alone.
const otherLanguage = "Other"

// LanguageStats is a per-language rollup over the reconstructed file table.
type LanguageStats struct {
	Language string
	Files    int
	Lines    int64
}

// LanguageRollup classifies every existing file by name and aggregates file
// and line counts per language, ordered by line count descending.
func LanguageRollup(states map[string]filestate.FileState) []LanguageStats {
	byLanguage := make(map[string]*LanguageStats)

	for _, p := range sortedPaths(states) {
		lang := languageOf(p)

		entry, ok := byLanguage[lang]
		if !ok {
			entry = &LanguageStats{Language: lang}
			byLanguage[lang] = entry
		}

		entry.Files++
		entry.Lines += int64(states[p].LineCount)
	}

	rollup := make([]LanguageStats, 0, len(byLanguage))
	for _, entry := range byLanguage {
		rollup = append(rollup, *entry)
	}

	sort.Slice(rollup, func(i, j int) bool {
		if rollup[i].Lines != rollup[j].Lines {
			return rollup[i].Lines > rollup[j].Lines
		}

		return rollup[i].Language < rollup[j].Language
	})

	return rollup
}

// languageOf detects a language from the file name alone. Content is not
// available after reconstruction, so extension and filename strategies are
// the only ones that can fire.
func languageOf(p string) string {
	base := path.Base(p)

	if lang, ok := enry.GetLanguageByExtension(base); ok {
		return lang
	}

	if lang, ok := enry.GetLanguageByFilename(base); ok {
		return lang
	}

	return otherLanguage
}
