package consensus

import (
	"strings"
	"unicode/utf8"
)

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AllSameOrEmpty returns the first value when every value is the same after
// whitespace and case normalization, "" otherwise.
func AllSameOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	first := normalize(values[0])
	for _, v := range values[1:] {
		if normalize(v) != first {
			return ""
		}
	}
	return values[0]
}

// MostFrequent returns the value seen most often; ties go to the one seen first.
func MostFrequent(values []string) string {
	counts := make(map[string]int, len(values))
	firstRaw := make(map[string]string, len(values))
	var order []string
	for _, v := range values {
		k := normalize(v)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
			firstRaw[k] = v
		}
		counts[k]++
	}
	best, bestCount := "", 0
	for _, k := range order {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	if bestCount == 0 {
		return ""
	}
	return firstRaw[best]
}

// Shortest returns the shortest non-empty value.
func Shortest(values []string) string {
	best := ""
	for _, v := range values {
		if v == "" {
			continue
		}
		if best == "" || utf8.RuneCountInString(v) < utf8.RuneCountInString(best) {
			best = v
		}
	}
	return best
}

// LongestUnder returns the longest value of at most limit characters.
func LongestUnder(limit int) Strategy {
	return func(values []string) string {
		best := ""
		for _, v := range values {
			n := utf8.RuneCountInString(v)
			if n == 0 || (limit > 0 && n > limit) {
				continue
			}
			if n > utf8.RuneCountInString(best) {
				best = v
			}
		}
		return best
	}
}
