package synth

import (
	"fmt"
	"regexp"
	"strings"

	"session-insights/internal/query"
	"session-insights/internal/schema"
)

const systemRules = `You are an expert SQL generator for a health-session database.
Given a user question and a database schema, write ONE read-only SELECT query.
Rules:
- Only use tables and columns that exist in the provided schema.
- For "last N sessions" filter once in a CTE and reuse it; never put ORDER BY or LIMIT directly before UNION ALL.
- Do not use PERCENTILE_CONT, PERCENTILE_DISC or WITHIN GROUP.
- When the question is about the user's own data, filter with user_id = <placeholder>.
- Never modify data (no INSERT, UPDATE, DELETE or DDL).
- Limit large results, for example LIMIT 100.
- Return only the SQL, no explanations.`

// SystemPrompt is the fixed rule list plus the dialect's placeholder syntax.
func SystemPrompt(d query.Dialect) string {
	return systemRules + "\n- " + d.PlaceholderHint()
}

// UserPrompt combines the question with the schema description.
func UserPrompt(question string, snapshot *schema.Snapshot, d query.Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", question)
	if snapshot != nil {
		fmt.Fprintf(&b, "Schema:\n%s\n\n", snapshot.Describe())
	}
	fmt.Fprintf(&b, "Write one %s SELECT statement.", d)
	return b.String()
}

var (
	fence         = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n(.*?)\\n?```\\s*$")
	leadingSelect = regexp.MustCompile(`(?ims)^\s*(?:with|select)\b.*?;`)
	anySelect     = regexp.MustCompile(`(?is)\bselect\b.*?;`)
)

// ExtractSQL pulls one statement out of model text: fences are stripped,
// then the first statement that starts a line with SELECT or WITH, then any
// SELECT up to a semicolon, then everything up to the first semicolon.
func ExtractSQL(text string) query.Untrusted {
	s := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if m := leadingSelect.FindString(s); m != "" {
		return query.Untrusted(strings.TrimSpace(m))
	}
	if m := anySelect.FindString(s); m != "" {
		return query.Untrusted(strings.TrimSpace(m))
	}
	if i := strings.Index(s, ";"); i >= 0 {
		return query.Untrusted(strings.TrimSpace(s[:i+1]))
	}
	return query.Untrusted(s)
}
