// Package core defines the shared domain types for atomsh: atomic asset
// definitions, extracted references, deployment records, run results, the
// error taxonomy, and the collaborator contracts implemented by connectors
// and registry stores.
//
// The Golden Rule: pkg/core imports stdlib only, so every other package
// can depend on it without pulling in drivers or frameworks.
package core
