package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSwapConflict reports that a concurrent run updated the same
// deployment record first. The losing attempt fails; it is never retried
// automatically.
var ErrSwapConflict = errors.New("deployment record changed concurrently")

// ErrNoPriorVersion reports that rollback found fewer than two history
// entries for the asset.
var ErrNoPriorVersion = errors.New("no prior version to roll back to")

// DefinitionError is a fatal load-time error in the asset set: a
// duplicate name, a dangling reference, or a dependency cycle. It aborts
// the whole run before any execution.
type DefinitionError struct {
	// Asset is the offending asset name, when a single asset is at fault.
	Asset string

	// Detail describes the violation.
	Detail string

	// Cycle holds the full cycle path for cycle errors, in edge order
	// with the starting node repeated at the end.
	Cycle []string
}

func (e *DefinitionError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("definition error: dependency cycle: %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Asset != "" {
		return fmt.Sprintf("definition error in asset %q: %s", e.Asset, e.Detail)
	}
	return fmt.Sprintf("definition error: %s", e.Detail)
}

// PlanningError is a fatal pre-execution error: a run request named an
// asset absent from the graph.
type PlanningError struct {
	Name string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning error: unknown asset %q", e.Name)
}

// IngestionError scopes an ingestion-connector failure to one asset
// attempt. It does not abort sibling branches and never touches the
// registry.
type IngestionError struct {
	Asset string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for asset %q: %v", e.Asset, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// TransformError scopes a transform-executor failure to one asset
// attempt.
type TransformError struct {
	Asset string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed for asset %q: %v", e.Asset, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
