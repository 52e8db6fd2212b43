package ui

import (
	"github.com/sahilm/fuzzy"

	"gptcli/model"
)

// FuzzyFilter returns the indexes of items matching query, best match
// first. An empty query matches everything in order.
func FuzzyFilter(query string, items []string) []int {
	if query == "" {
		idx := make([]int, len(items))
		for i := range items {
			idx[i] = i
		}
		return idx
	}
	matches := fuzzy.Find(query, items)
	idx := make([]int, len(matches))
	for i, m := range matches {
		idx[i] = m.Index
	}
	return idx
}

// FilterModels fuzzy-matches query against model display names.
func FilterModels(models []model.ModelInfo, query string) []model.ModelInfo {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.DisplayName()
	}
	idx := FuzzyFilter(query, names)
	out := make([]model.ModelInfo, len(idx))
	for i, j := range idx {
		out[i] = models[j]
	}
	return out
}
