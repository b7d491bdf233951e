// Package envns computes the isolation namespace that qualifies every
// physical target and deployment-registry key. Production runs pin a
// fixed namespace; everything else derives a branch-scoped workspace from
// source-control context, so concurrent branches share no mutable state.
package envns

import (
	"regexp"
	"strings"
)

// GitContext is the ambient source-control state, injected rather than
// read globally so tests can supply arbitrary branch contexts.
type GitContext struct {
	// Branch is the current branch name, empty when unknown (detached
	// HEAD, no repository).
	Branch string
}

// Resolver computes namespaces from an environment flag and git context.
type Resolver struct {
	// Base is the root namespace all others derive from.
	Base string

	// ProdEnvs are environment names that resolve to the base namespace
	// regardless of branch.
	ProdEnvs []string
}

// DefaultBase is the namespace used when no base is configured.
const DefaultBase = "main"

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// New creates a resolver with the given base namespace. An empty base
// falls back to DefaultBase; "prod" and "production" are always treated
// as production environments.
func New(base string) *Resolver {
	if base == "" {
		base = DefaultBase
	}
	return &Resolver{
		Base:     base,
		ProdEnvs: []string{"prod", "production"},
	}
}

// Resolve computes the namespace for an explicit environment flag (may be
// empty) and the ambient git context. Production always resolves to the
// fixed base namespace; anything else combines the base with the
// normalized branch name.
func (r *Resolver) Resolve(env string, git GitContext) string {
	for _, p := range r.ProdEnvs {
		if strings.EqualFold(env, p) {
			return r.Base
		}
	}

	branch := NormalizeBranch(git.Branch)
	if branch == "" {
		return r.Base
	}
	return r.Base + "_" + branch
}

// NormalizeBranch lowercases a branch name and replaces every
// non-identifier character run with a single underscore, trimming any
// leading or trailing underscores.
func NormalizeBranch(branch string) string {
	b := strings.ToLower(strings.TrimSpace(branch))
	b = nonIdent.ReplaceAllString(b, "_")
	return strings.Trim(b, "_")
}
