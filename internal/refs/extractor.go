// Package refs performs static analysis over asset transform text: it
// extracts ref(...) model references and infers the minimal set of source
// columns a transform consumes, without executing or fully parsing SQL.
//
// Projection inference is deliberately shallow. It decomposes only the
// select list of the SELECT immediately wrapping the {{ source }}
// placeholder; anything it cannot confidently decompose falls back to the
// ALL sentinel. A false ALL over-fetches; a false narrow projection would
// be a correctness bug.
package refs

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

var (
	// refPattern matches the ref(name) callable-like token, quoted or
	// bare, inside or outside {{ }} delimiters.
	refPattern = regexp.MustCompile(`\bref\(\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?\s*\)`)

	// sourcePattern matches the {{ source }} placeholder.
	sourcePattern = regexp.MustCompile(`\{\{\s*source\s*\}\}`)

	fromPattern   = regexp.MustCompile(`(?i)\bfrom\b`)
	selectPattern = regexp.MustCompile(`(?i)\bselect\b`)

	identPattern    = regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9_]*\.)?([A-Za-z_][A-Za-z0-9_]*)$`)
	postPattern     = regexp.MustCompile(`(?i)^(?:(?:as\s+)?[A-Za-z_][A-Za-z0-9_]*)?\s*(?:\)[\s\S]*)?$`)
	aliasPattern    = regexp.MustCompile(`(?i)^(?:[A-Za-z_][A-Za-z0-9_]*\.)?([A-Za-z_][A-Za-z0-9_]*)\s+as\s+[A-Za-z_][A-Za-z0-9_]*$`)
	distinctPattern = regexp.MustCompile(`(?i)^distinct\b`)
)

// Hash returns the content hash of a transform text, used to key the
// extraction cache across runs.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Extract analyzes a transform text and returns its references and
// inferred source projection.
func Extract(text string) *core.ExtractedRefs {
	out := &core.ExtractedRefs{
		UsesSource: sourcePattern.MatchString(text),
	}

	seen := make(map[string]bool)
	for _, m := range refPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out.ModelRefs = append(out.ModelRefs, m[1])
		}
	}
	sort.Strings(out.ModelRefs)

	out.Projection = inferProjection(text)
	return out
}

// inferProjection walks the select list of the SELECT immediately
// wrapping {{ source }}. Every ambiguity resolves to ALL.
func inferProjection(text string) core.Projection {
	locs := sourcePattern.FindAllStringIndex(text, -1)
	if len(locs) != 1 {
		// Zero placeholders means nothing to narrow; more than one
		// means a second read site this analysis does not see.
		return core.ProjectAll()
	}
	loc := locs[0]

	// Multi-statement transforms are opaque. A single trailing
	// semicolon is tolerated.
	trimmed := strings.TrimRight(strings.TrimSpace(text), ";")
	if strings.Contains(trimmed, ";") {
		return core.ProjectAll()
	}

	// After the placeholder only an optional alias and, for a wrapped
	// subselect, the closing parenthesis are allowed. A WHERE, JOIN or
	// GROUP BY there consumes columns outside the select list.
	post := strings.TrimSpace(text[loc[1]:])
	post = strings.TrimSpace(strings.TrimSuffix(post, ";"))
	if !postPattern.MatchString(post) {
		return core.ProjectAll()
	}

	pre := text[:loc[0]]

	// The placeholder must directly follow a FROM keyword; joins,
	// subquery aliases and other shapes are not decomposed.
	fromLocs := fromPattern.FindAllStringIndex(pre, -1)
	if len(fromLocs) == 0 {
		return core.ProjectAll()
	}
	from := fromLocs[len(fromLocs)-1]
	if strings.TrimSpace(pre[from[1]:]) != "" {
		return core.ProjectAll()
	}

	selLocs := selectPattern.FindAllStringIndex(pre[:from[0]], -1)
	if len(selLocs) == 0 {
		return core.ProjectAll()
	}
	sel := selLocs[len(selLocs)-1]

	list := strings.TrimSpace(pre[sel[1]:from[0]])
	list = strings.TrimSpace(distinctPattern.ReplaceAllString(list, ""))
	if list == "" {
		return core.ProjectAll()
	}

	// Parenthesized expressions (function calls, subselects, casts)
	// cannot be confidently decomposed.
	if strings.ContainsAny(list, "()") {
		return core.ProjectAll()
	}

	var cols []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "*" || strings.HasSuffix(item, ".*") {
			return core.ProjectAll()
		}

		var col string
		switch {
		case aliasPattern.MatchString(item):
			col = aliasPattern.FindStringSubmatch(item)[1]
		case identPattern.MatchString(item):
			col = identPattern.FindStringSubmatch(item)[1]
		default:
			return core.ProjectAll()
		}

		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}

	return core.ProjectColumns(cols)
}
