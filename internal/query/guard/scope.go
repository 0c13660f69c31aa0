package guard

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"session-insights/internal/query"
)

// personalTables maps each table holding per-user rows to the predicate
// that restricts it to one user. %[1]s is the column qualifier and %[2]s
// the placeholder.
var personalTables = map[string]string{
	PrimaryTable:      "%[1]s" + IdentityColumn + " = %[2]s",
	"users":           "%[1]sid = %[2]s",
	"alerts":          "%[1]ssession_id IN (SELECT id FROM " + PrimaryTable + " WHERE " + IdentityColumn + " = %[2]s)",
	"recommendations": "%[1]ssession_id IN (SELECT id FROM " + PrimaryTable + " WHERE " + IdentityColumn + " = %[2]s)",
}

var (
	errNothingToScope  = errors.New("no personal table to scope")
	errUnknownTableUse = errors.New("personal table used outside a FROM or JOIN")
)

var (
	clauseKeyword = regexp.MustCompile(
		`(?i)\b(select|from|where|group\s+by|having|window|order\s+by|limit|offset|fetch|union|intersect|except)\b`)
	joinKeyword     = regexp.MustCompile(`(?i)\bjoin\b`)
	boolKeyword     = regexp.MustCompile(`(?i)\b(and|or)\b`)
	fetchFirst      = regexp.MustCompile(`(?i)^\s+(first|next)\b`)
	personalMention = regexp.MustCompile(`(?i)(\bas\s+)?"?\b(` + tableAlternation() + `)\b"?(\s*\.)?`)

	spaceRun       = regexp.MustCompile(`\s+`)
	spaceNearPunct = regexp.MustCompile(`\s*([().=,])\s*`)
	numbered       = regexp.MustCompile(`\$\d+`)
)

// refStop ends a table reference; the word after the table name is only an
// alias when it is none of these.
var refStop = map[string]bool{
	"on": true, "using": true, "left": true, "right": true, "full": true,
	"inner": true, "outer": true, "cross": true, "natural": true, "lateral": true,
}

func tableAlternation() string {
	names := make([]string, 0, len(personalTables))
	for name := range personalTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

type keyword struct {
	word  string
	start int
	end   int
	depth int
}

// scanKeywords lists clause keywords with their parenthesis depth. code
// must already have literals blanked.
func scanKeywords(code string) []keyword {
	depth := parenDepths(code)
	var out []keyword
	for _, m := range clauseKeyword.FindAllStringIndex(code, -1) {
		word := strings.ToLower(strings.Join(strings.Fields(code[m[0]:m[1]]), " "))
		out = append(out, keyword{word: word, start: m[0], end: m[1], depth: depth[m[0]]})
	}
	return out
}

// parenDepths gives the nesting depth in effect at each byte of code.
func parenDepths(code string) []int {
	depth := make([]int, len(code)+1)
	d := 0
	for i := 0; i < len(code); i++ {
		depth[i] = d
		switch code[i] {
		case '(':
			d++
		case ')':
			if d > 0 {
				d--
			}
		}
	}
	depth[len(code)] = d
	return depth
}

// hasRowLimit reports a LIMIT or FETCH FIRST/NEXT on the outermost query.
func hasRowLimit(code string) bool {
	for _, kw := range scanKeywords(code) {
		if kw.depth != 0 {
			continue
		}
		if kw.word == "limit" {
			return true
		}
		if kw.word == "fetch" && fetchFirst.MatchString(code[kw.end:]) {
			return true
		}
	}
	return false
}

// selectBlock is one SELECT at any depth: a CTE body, a subquery, a set
// operation branch or the outer query.
type selectBlock struct {
	start, end int
	kws        []keyword
}

func (b selectBlock) clause(word string) (keyword, int, bool) {
	for i, kw := range b.kws {
		if kw.word == word {
			return kw, i, true
		}
	}
	return keyword{}, 0, false
}

// region returns the byte range of the clause opened by kws[i].
func (b selectBlock) region(i int) (int, int) {
	end := b.end
	if i+1 < len(b.kws) {
		end = b.kws[i+1].start
	}
	return b.kws[i].end, end
}

func selectBlocks(code string, kws []keyword) []selectBlock {
	var out []selectBlock
	for i, kw := range kws {
		if kw.word != "select" {
			continue
		}
		b := selectBlock{start: kw.start, end: closingParen(code, kw.end)}
		for _, k := range kws[i+1:] {
			if k.start >= b.end {
				break
			}
			if k.depth != kw.depth {
				continue
			}
			if isSetOp(k.word) || k.word == "select" {
				b.end = k.start
				break
			}
			b.kws = append(b.kws, k)
		}
		out = append(out, b)
	}
	return out
}

// closingParen returns the index of the parenthesis closing the group that
// contains from, or len(code).
func closingParen(code string, from int) int {
	d := 0
	for i := from; i < len(code); i++ {
		switch code[i] {
		case '(':
			d++
		case ')':
			if d == 0 {
				return i
			}
			d--
		}
	}
	return len(code)
}

type tableRef struct {
	name  string
	alias string
}

// tableRefs lists the plain tables named in a FROM list, including joined
// ones. Derived tables are skipped; their own SELECT is a separate block.
func tableRefs(body, code string, from, to int) []tableRef {
	var refs []tableRef
	for _, item := range splitFromList(body, code, from, to) {
		fields := strings.Fields(item)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "(") {
			continue
		}
		ref := tableRef{name: tableName(fields[0])}
		rest := fields[1:]
		if len(rest) > 0 && strings.EqualFold(rest[0], "as") {
			rest = rest[1:]
		}
		if len(rest) > 0 && !refStop[strings.ToLower(rest[0])] && !strings.HasPrefix(rest[0], "(") {
			ref.alias = rest[0]
		}
		refs = append(refs, ref)
	}
	return refs
}

// splitFromList cuts a FROM list at top-level commas and JOIN keywords.
func splitFromList(body, code string, from, to int) []string {
	var cuts [][2]int
	d := 0
	for i := from; i < to; i++ {
		switch code[i] {
		case '(':
			d++
		case ')':
			d--
		case ',':
			if d == 0 {
				cuts = append(cuts, [2]int{i, i + 1})
			}
		}
	}
	depth := parenDepths(code[from:to])
	for _, m := range joinKeyword.FindAllStringIndex(code[from:to], -1) {
		if depth[m[0]] == 0 {
			cuts = append(cuts, [2]int{from + m[0], from + m[1]})
		}
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i][0] < cuts[j][0] })

	var items []string
	start := from
	for _, c := range cuts {
		items = append(items, body[start:c[0]])
		start = c[1]
	}
	return append(items, body[start:to])
}

func tableName(tok string) string {
	tok = strings.Trim(tok, "\"`")
	if i := strings.LastIndex(tok, "."); i >= 0 {
		tok = strings.Trim(tok[i+1:], "\"`")
	}
	return strings.ToLower(tok)
}

// conjuncts splits a WHERE condition at top-level AND. ok is false when a
// top-level OR makes the split meaningless.
func conjuncts(body, code string, from, to int) ([]string, bool) {
	depth := parenDepths(code[from:to])
	var parts []string
	start := from
	for _, m := range boolKeyword.FindAllStringIndex(code[from:to], -1) {
		if depth[m[0]] != 0 {
			continue
		}
		if strings.EqualFold(code[from+m[0]:from+m[1]], "or") {
			return nil, false
		}
		parts = append(parts, body[start:from+m[0]])
		start = from + m[1]
	}
	return append(parts, body[start:to]), true
}

// normalizePredicate folds case, spacing and placeholder numbering so
// predicates can be compared as text.
func normalizePredicate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for strings.HasPrefix(s, "(") && closingParen(s, 1) == len(s)-1 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = spaceRun.ReplaceAllString(s, " ")
	s = spaceNearPunct.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, `"`, "")
	return numbered.ReplaceAllString(s, "$$")
}

// qualifiers lists the column prefixes under which an existing predicate
// counts for ref, and the one used when adding it.
func qualifiers(ref tableRef, single bool) (accepted []string, use string) {
	switch {
	case ref.alias != "":
		accepted = []string{ref.alias + "."}
		use = ref.alias + "."
	case single:
		accepted = []string{ref.name + "."}
		use = ""
	default:
		accepted = []string{ref.name + "."}
		use = ref.name + "."
	}
	if single {
		accepted = append(accepted, "")
	}
	return accepted, use
}

// addScope restricts every read of a personal table to one identity. Each
// SELECT block that names such a table in its FROM list must carry the
// table's predicate as a top-level AND conjunct of its own WHERE; blocks
// that do not get it added, with any existing condition parenthesized.
func addScope(body string, dialect query.Dialect) (string, error) {
	code := query.CodeOnly(body)
	placeholder := dialect.Placeholder(dialect.CountPlaceholders(body) + 1)

	type edit struct {
		at   int
		text string
	}
	var edits []edit
	refsSeen := 0

	for _, b := range selectBlocks(code, scanKeywords(code)) {
		_, fi, ok := b.clause("from")
		if !ok {
			continue
		}
		from, to := b.region(fi)
		refs := tableRefs(body, code, from, to)

		var preds []string
		var existing []string
		wk, wi, hasWhere := b.clause("where")
		whereOK := true
		if hasWhere {
			wFrom, wTo := b.region(wi)
			existing, whereOK = conjuncts(body, code, wFrom, wTo)
		}
		for _, ref := range refs {
			tmpl, personal := personalTables[ref.name]
			if !personal {
				continue
			}
			refsSeen++
			accepted, use := qualifiers(ref, len(refs) == 1)
			if whereOK && hasPredicate(existing, tmpl, accepted, dialect) {
				continue
			}
			preds = append(preds, fmt.Sprintf(tmpl, use, placeholder))
		}
		if len(preds) == 0 {
			continue
		}

		pred := strings.Join(preds, " AND ")
		if !hasWhere {
			edits = append(edits, edit{at: trimLeftSpace(body, from, to), text: " WHERE " + pred})
			continue
		}
		wFrom, wTo := b.region(wi)
		start := wk.end
		for start < wTo && isSpace(body[start]) {
			start++
		}
		edits = append(edits,
			edit{at: start, text: "("},
			edit{at: trimLeftSpace(body, wFrom, wTo), text: ") AND " + pred})
	}

	if refsSeen == 0 {
		return "", errNothingToScope
	}
	if mentions := countMentions(blankStrings(body)); mentions > refsSeen {
		return "", errUnknownTableUse
	}

	sort.SliceStable(edits, func(i, j int) bool { return edits[i].at > edits[j].at })
	out := body
	for _, e := range edits {
		out = out[:e.at] + e.text + out[e.at:]
	}
	return out, nil
}

func hasPredicate(existing []string, tmpl string, accepted []string, dialect query.Dialect) bool {
	for _, q := range accepted {
		want := normalizePredicate(fmt.Sprintf(tmpl, q, dialect.Placeholder(1)))
		for _, c := range existing {
			if normalizePredicate(c) == want {
				return true
			}
		}
	}
	return false
}

// countMentions counts personal table names, quoted or not, ignoring column
// qualifiers and AS aliases.
func countMentions(code string) int {
	n := 0
	for _, m := range personalMention.FindAllStringSubmatchIndex(code, -1) {
		if m[2] >= 0 || m[6] >= 0 {
			continue
		}
		n++
	}
	return n
}

// blankStrings blanks single-quoted literals but keeps quoted identifiers.
func blankStrings(sql string) string {
	b := []byte(sql)
	in := false
	for i := 0; i < len(b); i++ {
		if b[i] == '\'' {
			if in && i+1 < len(b) && b[i+1] == '\'' {
				b[i], b[i+1] = ' ', ' '
				i++
				continue
			}
			in = !in
			continue
		}
		if in {
			b[i] = ' '
		}
	}
	return string(b)
}

// trimLeftSpace moves pos back over whitespace so inserted text hugs the
// preceding token.
func trimLeftSpace(s string, floor, pos int) int {
	for pos > floor && isSpace(s[pos-1]) {
		pos--
	}
	return pos
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func isSetOp(word string) bool {
	return word == "union" || word == "intersect" || word == "except"
}
