// Package quality scores assistant responses: an automated evaluator pass
// over unscored responses, human feedback capture, and fusion of the two
// into a final score that boosts retrieval ranking.
package quality

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseable means no score could be extracted from the evaluator
// response. Unparseable responses are skipped, never stored.
var ErrUnparseable = errors.New("quality: no score in evaluator response")

// Evaluator responses arrive in many shapes. The patterns are tried in
// order from most to least specific; the first match wins.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\*\*Score:\s*(\d+(?:\.\d+)?)\*\*`),
	regexp.MustCompile(`(?i)Score:\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*10`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s*$`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)`),
}

// ParseScore extracts a 1 to 10 rating from an evaluator response. A reply
// that is nothing but a number is taken as-is; otherwise the patterns are
// tried in order. Out-of-range values are clamped into [1, 10].
func ParseScore(response string) (float64, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return 0, ErrUnparseable
	}

	if score, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return clampScore(score), nil
	}

	for _, pattern := range scorePatterns {
		m := pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return clampScore(score), nil
	}
	return 0, ErrUnparseable
}

func clampScore(score float64) float64 {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
