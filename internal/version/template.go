package version

import (
	"regexp"
	"strings"
)

var (
	sourceToken = regexp.MustCompile(`\{\{\s*source\s*\}\}`)

	// ref() appears both wrapped in braces and bare; the wrapped form is
	// replaced first so the bare pattern never leaves stray braces behind.
	wrappedRefToken = regexp.MustCompile(`\{\{\s*ref\(\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?\s*\)\s*\}\}`)
	bareRefToken    = regexp.MustCompile(`\bref\(\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?\s*\)`)
)

// Render resolves a transform's placeholders into concrete target
// identifiers. sourceTarget replaces {{ source }}; resolveRef maps each
// referenced asset name to the target its data should be read from.
func Render(transform, sourceTarget string, resolveRef func(name string) string) string {
	out := sourceToken.ReplaceAllString(transform, sourceTarget)

	replace := func(re *regexp.Regexp, text string) string {
		return re.ReplaceAllStringFunc(text, func(match string) string {
			name := re.FindStringSubmatch(match)[1]
			return resolveRef(name)
		})
	}
	out = replace(wrappedRefToken, out)
	out = replace(bareRefToken, out)

	return strings.TrimSpace(out)
}
