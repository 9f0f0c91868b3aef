// Package resolve picks one entry out of an enumerated filter list.
package resolve

import (
	"strings"

	"golang.org/x/text/cases"

	"comexexport/internal/model"
)

var (
	// DefaultTerms are the substrings that identify the United States entry in
	// English or Portuguese listings.
	DefaultTerms = []string{"United", "United States", "Estados Unidos", "USA", "United States of America"}

	// KnownCodes are compared for equality against entry values when no label matches.
	KnownCodes = []string{"usa", "us", "united states", "united states of america"}

	// DefaultHints loosely select entries worth showing after a miss.
	DefaultHints = []string{"estados", "united", "usa"}
)

// FindEntry returns the first entry whose display text contains any of terms,
// ignoring case. When none does, it falls back to the first entry whose value
// equals one of KnownCodes.
func FindEntry(entries []model.FilterEntry, terms []string) (model.FilterEntry, bool) {
	folder := cases.Fold()
	folded := foldAll(folder, terms)

	for _, entry := range entries {
		text := folder.String(entry.DisplayText())
		for _, term := range folded {
			if term == "" {
				continue
			}
			if strings.Contains(text, term) {
				return entry, true
			}
		}
	}

	codes := foldAll(folder, KnownCodes)
	for _, entry := range entries {
		value := folder.String(entry.ValueString())
		for _, code := range codes {
			if value == code {
				return entry, true
			}
		}
	}
	return model.FilterEntry{}, false
}

// Candidates lists entries whose display text contains any hint, in order.
func Candidates(entries []model.FilterEntry, hints []string) []model.FilterEntry {
	folder := cases.Fold()
	folded := foldAll(folder, hints)

	matches := make([]model.FilterEntry, 0)
	for _, entry := range entries {
		text := entry.DisplayText()
		if text == "" {
			continue
		}
		text = folder.String(text)
		for _, hint := range folded {
			if hint != "" && strings.Contains(text, hint) {
				matches = append(matches, entry)
				break
			}
		}
	}
	return matches
}

func foldAll(folder cases.Caser, values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, folder.String(strings.TrimSpace(value)))
	}
	return out
}
