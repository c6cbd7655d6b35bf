package agent

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"mojobot/internal/domain"
)

// TriggerMatcher decides whether a message addresses the agent and extracts the
// question left once every mention is removed.
type TriggerMatcher struct {
	patterns []*regexp.Regexp
}

// NewTriggerMatcher compiles case-insensitive matchers for the given mentions
// (e.g. "@mojo"). Blank mentions are ignored.
func NewTriggerMatcher(mentions []string) *TriggerMatcher {
	m := &TriggerMatcher{}
	for _, mention := range mentions {
		mention = strings.TrimSpace(mention)
		if mention == "" {
			continue
		}
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(mention)))
	}
	return m
}

// Match reports whether text mentions the agent. When it does, the returned
// question has every mention occurrence stripped and surrounding whitespace trimmed.
func (m *TriggerMatcher) Match(text string) (domain.ExtractedQuestion, bool) {
	spans := m.mentionSpans(text)
	if len(spans) == 0 {
		return domain.ExtractedQuestion{}, false
	}

	var sb strings.Builder
	last := 0
	for _, s := range spans {
		sb.WriteString(text[last:s[0]])
		last = s[1]
	}
	sb.WriteString(text[last:])

	return domain.ExtractedQuestion{
		Raw:      text,
		Question: strings.TrimSpace(sb.String()),
	}, true
}

// mentionSpans returns sorted, non-overlapping byte ranges of every mention.
// A mention directly followed by a letter, digit or underscore ("@mojobot") is
// a different word and does not count.
func (m *TriggerMatcher) mentionSpans(text string) [][2]int {
	var spans [][2]int
	for _, re := range m.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if continuesWord(text, loc[1]) {
				continue
			}
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	if len(spans) < 2 {
		return spans
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	merged := make([][2]int, 1, len(spans))
	merged[0] = spans[0]
	for _, s := range spans[1:] {
		tail := &merged[len(merged)-1]
		if s[0] <= tail[1] {
			tail[1] = max(tail[1], s[1])
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func continuesWord(text string, at int) bool {
	if at >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[at:])
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
