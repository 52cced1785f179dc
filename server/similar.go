package server

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const (
	similarityThreshold = 0.5
	maxSuggestions      = 5
)

// Similarity returns a ratio in [0, 1] based on Levenshtein distance,
// case-insensitive. Identical strings score 1.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	cur := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 0; j < len(b); j++ {
		cur[0] = j + 1
		for i := 0; i < len(a); i++ {
			if a[i] == b[j] {
				cur[i+1] = prev[i]
			} else {
				cur[i+1] = 1 + min(prev[i], min(prev[i+1], cur[i]))
			}
		}
		prev, cur = cur, prev
	}
	dist := prev[len(a)]
	longer := len(b)
	if len(a) > longer {
		longer = len(a)
	}
	return 1 - float64(dist)/float64(longer)
}

// Suggestion is a candidate file for a "did you mean" hint.
type Suggestion struct {
	Path  string
	Score float64
}

// FindSimilarFiles walks the folders looking for filenames similar to
// the requested path's base name. Results are folder-relative,
// best-first, capped at maxSuggestions.
func FindSimilarFiles(requested string, folders []string) []Suggestion {
	searchName := strings.ToLower(filepath.Base(requested))
	if searchName == "" || searchName == "." || searchName == "/" {
		return nil
	}

	var results []Suggestion
	for _, dir := range folders {
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			score := Similarity(searchName, d.Name())
			if score >= similarityThreshold {
				rel, relErr := filepath.Rel(dir, path)
				if relErr != nil {
					return nil
				}
				results = append(results, Suggestion{
					Path:  filepath.ToSlash(rel),
					Score: score,
				})
			}
			return nil
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxSuggestions {
		results = results[:maxSuggestions]
	}
	return results
}
