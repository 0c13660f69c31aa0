package guard

import (
	"fmt"
	"regexp"
	"strings"

	"session-insights/internal/common/logger"
	"session-insights/internal/common/metrics"
	"session-insights/internal/query"
	"session-insights/internal/query/internal/trust"
)

// PrimaryTable is the table whose unbounded reads get a row cap.
const PrimaryTable = "sessions"

// IdentityColumn is the scoping column.
const IdentityColumn = "user_id"

type Config struct {
	RowCap  int
	Dialect query.Dialect
}

// Guard validates and rewrites untrusted statements. Its rules are fixed
// at construction and it is safe for concurrent use.
type Guard struct {
	rowCap  int
	dialect query.Dialect
	logger  logger.Logger
}

func New(cfg Config, log logger.Logger) *Guard {
	if cfg.RowCap <= 0 {
		cfg.RowCap = 100
	}
	if cfg.Dialect == "" {
		cfg.Dialect = query.Postgres
	}
	return &Guard{rowCap: cfg.RowCap, dialect: cfg.Dialect, logger: logger.Named(log, "guard")}
}

var (
	unsafeVerb     = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create)\b`)
	percentile     = regexp.MustCompile(`(?i)\bpercentile_(cont|disc)\b|\bwithin\s+group\b`)
	leadingKeyword = regexp.MustCompile(`(?i)^[\s(]*(select|with)\b`)
	selectInto     = regexp.MustCompile(`(?is)\bselect\b.*\binto\b`)
	limitParam     = regexp.MustCompile(`(?i)\blimit\s+(\$\d+|\?)`)
	orderLimitSet  = regexp.MustCompile(`(?is)\border\s+by\b.+?\blimit\s+\d+\s*(union|intersect|except)\b`)
	readsPrimary   = regexp.MustCompile(`(?i)\b(from|join)\s+(["\w]+\.)?"?` + PrimaryTable + `\b`)
)

// Validate applies the rules in order; the first violation wins. It is a
// total function and a fixed point on its own accepted output.
func (g *Guard) Validate(raw query.Untrusted, scope Scope) Decision {
	d := g.validate(string(raw), scope)
	g.record(d)
	return d
}

func (g *Guard) validate(raw string, scope Scope) Decision {
	body := trimSeparators(StripComments(raw))
	if body == "" {
		return Reject(ReasonEmpty, "")
	}

	if m := unsafeVerb.FindString(raw); m != "" {
		return Reject(ReasonUnsafeVerb, strings.ToUpper(m))
	}

	code := query.CodeOnly(body)
	switch {
	case percentile.MatchString(code):
		return Reject(ReasonUnsupportedSyntax, "percentile")
	case !leadingKeyword.MatchString(code):
		return Reject(ReasonUnsupportedSyntax, "not a SELECT")
	case strings.Contains(code, ";"):
		return Reject(ReasonUnsupportedSyntax, "multiple statements")
	case selectInto.MatchString(code):
		return Reject(ReasonUnsupportedSyntax, "SELECT INTO")
	case limitParam.MatchString(code):
		return Reject(ReasonUnsupportedSyntax, "parameterized LIMIT")
	}

	if orderLimitSet.MatchString(code) {
		return Reject(ReasonMalformedSetOp, "ORDER BY/LIMIT before set operator")
	}

	if scope.Required {
		next, err := addScope(body, g.dialect)
		if err != nil {
			return Reject(ReasonUnsupportedSyntax, err.Error())
		}
		body = next
		code = query.CodeOnly(body)
	}

	if readsPrimary.MatchString(blankStrings(body)) && !hasRowLimit(code) {
		body = fmt.Sprintf("%s LIMIT %d", body, g.rowCap)
	}

	text := body + ";"
	n := g.dialect.CountPlaceholders(text)
	params := make([]interface{}, n)
	for i := range params {
		params[i] = scope.Identity
	}
	return accept(trust.Mint(text, params, scope.Required, query.OriginGuarded))
}

func (g *Guard) record(d Decision) {
	if d.Accepted() {
		metrics.GuardDecisions.WithLabelValues("accepted", "").Inc()
		return
	}
	metrics.GuardDecisions.WithLabelValues("rejected", string(d.Reason())).Inc()
	g.logger.Info("statement rejected", map[string]interface{}{
		"reason": string(d.Reason()),
		"detail": d.Detail(),
	})
}

// trimSeparators drops surrounding whitespace and trailing semicolons.
func trimSeparators(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

// StripComments removes -- and /* */ comments outside quoted text.
func StripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
			if i < len(sql) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
