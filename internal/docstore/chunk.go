package docstore

import (
	"sort"
	"strings"
	"unicode"
)

// Chunk splits text into windows of at most size words, each overlapping the previous by overlap words.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Rank returns the indexes of the k chunks sharing the most distinct terms with query,
// best first. Ties keep document order.
func Rank(query string, chunks []string, k int) []int {
	terms := termSet(query)

	type scored struct {
		idx   int
		score int
	}
	scores := make([]scored, len(chunks))
	for i, c := range chunks {
		s := 0
		for t := range termSet(c) {
			if _, ok := terms[t]; ok {
				s++
			}
		}
		scores[i] = scored{idx: i, score: s}
	}

	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	if k <= 0 || k > len(scores) {
		k = len(scores)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = scores[i].idx
	}
	return out
}

func termSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) < 3 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
