package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a database driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", driver)
}

// Placeholder renders the n-th (1-based) positional placeholder.
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// PlaceholderHint describes the placeholder syntax for a prompt.
func (d Dialect) PlaceholderHint() string {
	if d == SQLite {
		return "Use ? placeholders for parameters."
	}
	return "Use $1, $2, ... placeholders for parameters."
}

// DurationSeconds renders end-start in seconds.
func (d Dialect) DurationSeconds(start, end string) string {
	if d == SQLite {
		return fmt.Sprintf("(CAST(strftime('%%s', %s) AS INTEGER) - CAST(strftime('%%s', %s) AS INTEGER))", end, start)
	}
	return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", end, start)
}

// CountPlaceholders returns how many positional parameters sql expects.
// For postgres that is the highest $n; for sqlite each ? counts once.
// Placeholders inside string literals and quoted identifiers are ignored.
func (d Dialect) CountPlaceholders(sql string) int {
	code := CodeOnly(sql)
	if d == SQLite {
		return strings.Count(code, "?")
	}
	max := 0
	for i := 0; i < len(code); i++ {
		if code[i] != '$' {
			continue
		}
		j := i + 1
		for j < len(code) && code[j] >= '0' && code[j] <= '9' {
			j++
		}
		if j > i+1 {
			if n, err := strconv.Atoi(code[i+1 : j]); err == nil && n > max {
				max = n
			}
		}
		i = j - 1
	}
	return max
}

// CodeOnly blanks the contents of quoted strings and identifiers with
// spaces, keeping byte offsets stable, so keyword scans never match text
// inside literals.
func CodeOnly(sql string) string {
	b := []byte(sql)
	var quote byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		if quote != 0 {
			if c == quote {
				if i+1 < len(b) && b[i+1] == quote {
					b[i] = ' '
					b[i+1] = ' '
					i++
					continue
				}
				quote = 0
				continue
			}
			b[i] = ' '
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
		}
	}
	return string(b)
}
