package agent

import "regexp"

// searchIndicators are loose heuristics for questions that need current
// information. False positives and negatives are both acceptable; the gate only
// bounds how often the search backend is called.
var searchIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)latest|recent|current|today|news|update`),
	regexp.MustCompile(`(?i)what is happening|what's happening`),
	regexp.MustCompile(`\b202[4-9]\b`),
	regexp.MustCompile(`(?i)price of|stock|weather`),
}

// NeedsWebSearch reports whether question plausibly needs fresh web results.
func NeedsWebSearch(question string) bool {
	for _, re := range searchIndicators {
		if re.MatchString(question) {
			return true
		}
	}
	return false
}
