package routing

import (
	"regexp"
	"strconv"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses runs of whitespace.
func Normalize(text string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

var sessionIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsession\s*id\s*[:#]?\s*(\d+)\b`),
	regexp.MustCompile(`\bsession\s*(?:no\.?|number)\s*(\d+)\b`),
	regexp.MustCompile(`\bsession\s*[:#]?\s*(\d+)\b`),
}

// SessionID extracts an explicit session identifier from normalized text.
func SessionID(q string) (int64, bool) {
	for _, re := range sessionIDPatterns {
		if m := re.FindStringSubmatch(q); m != nil {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return id, true
			}
		}
	}
	return 0, false
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

var lastNSessions = regexp.MustCompile(
	`\b(?:last|past|previous|recent)\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\s+sessions?\b`)

// WindowSize extracts N from "last N sessions" phrasing. N may be digits or
// a number word up to twenty.
func WindowSize(q string) (int, bool) {
	m := lastNSessions.FindStringSubmatch(q)
	if m == nil {
		return 0, false
	}
	if n, ok := numberWords[m[1]]; ok {
		return n, true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var goalKeywords = []struct {
	keyword string
	goal    string
}{
	{"core", "core strength"},
	{"balance", "balance"},
	{"posture", "posture"},
	{"gait", "gait efficiency"},
}

// Goal picks the plan goal from the first matching keyword.
func Goal(q string) string {
	for _, g := range goalKeywords {
		if strings.Contains(q, g.keyword) {
			return g.goal
		}
	}
	return "core strength"
}

var lastN = regexp.MustCompile(
	`\b(?:last|past)\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\b`)

// LastN extracts N from "last N" with or without a trailing noun.
func LastN(q string) (int, bool) {
	m := lastN.FindStringSubmatch(q)
	if m == nil {
		return 0, false
	}
	if n, ok := numberWords[m[1]]; ok {
		return n, true
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

// IsHealthOverview reports phrasing that asks for an overall health summary.
func IsHealthOverview(q string) bool {
	if containsAny(q, overviewPhrases) {
		return true
	}
	return strings.Contains(q, "describe") && strings.Contains(q, "session")
}

// IsKnowledgeQuestion reports how-to or definition phrasing.
func IsKnowledgeQuestion(q string) bool {
	return containsAny(q, knowledgePhrases)
}

var personalMarkers = regexp.MustCompile(`\b(?:my|me|mine|i|our)\b`)

// IsPersonal reports whether the text refers to the asker's own data. The
// knowledge phrases themselves ("how do i") do not count.
func IsPersonal(q string) bool {
	for _, p := range knowledgePhrases {
		q = strings.ReplaceAll(q, p, " ")
	}
	return personalMarkers.MatchString(q)
}

var recencyWords = regexp.MustCompile(`\b(?:last|previous|recent|latest)\b`)

// HasRecency reports whether the text asks about the latest data.
func HasRecency(q string) bool {
	return recencyWords.MatchString(q)
}

func containsAny(q string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

func matchesAny(q string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(q) {
			return true
		}
	}
	return false
}
