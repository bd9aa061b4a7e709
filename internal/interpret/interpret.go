package interpret

import (
	"regexp"
	"strings"
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	trailingRe = regexp.MustCompile(`[.!?,;:]+$`)
	quoteRepl  = strings.NewReplacer("‘", "'", "’", "'", "“", `"`, "”", `"`)
)

// Interpret maps text to an Intent. It returns false only when text is
// empty after cleanup; anything unrecognised becomes a plain search.
//
// Tiers are tried in order (exact keywords, structured phrases, fallback).
// Within a tier the first category in table order with a matching rule
// wins. Within that category the rule whose literal text covers the most of
// the input wins, and ties go to the earlier rule.
func Interpret(text string) (Intent, bool) {
	in := clean(text)
	if in == "" {
		return Intent{}, false
	}
	for _, t := range tiers {
		if intent, ok := resolveTier(t, in); ok {
			return intent, true
		}
	}
	return Intent{Category: CategorySearch, Mode: ModePlain, Arg: in}, true
}

func resolveTier(t tier, in string) (Intent, bool) {
	var (
		winner   Category
		best     Intent
		bestSpan = -1
	)
	for _, r := range rules {
		if r.tier != t {
			continue
		}
		if winner != "" && r.category != winner {
			continue
		}
		loc := r.pattern.FindStringSubmatchIndex(in)
		if loc == nil {
			continue
		}
		intent, ok := r.extract(submatches(in, loc))
		if !ok {
			continue
		}
		winner = r.category
		if span := literalSpan(loc); span > bestSpan {
			best, bestSpan = intent, span
		}
	}
	return best, winner != ""
}

func submatches(in string, loc []int) []string {
	m := make([]string, len(loc)/2)
	for i := range m {
		if loc[2*i] >= 0 {
			m[i] = in[loc[2*i]:loc[2*i+1]]
		}
	}
	return m
}

// literalSpan is the length of the match not covered by capture groups.
func literalSpan(loc []int) int {
	span := loc[1] - loc[0]
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] >= 0 {
			span -= loc[i+1] - loc[i]
		}
	}
	return span
}

func clean(text string) string {
	s := quoteRepl.Replace(strings.ToLower(text))
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	s = trailingRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
