package core

import "time"

// RunStatus is the overall state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run records one invocation of the version manager over a plan.
type Run struct {
	ID          string
	Namespace   string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// AssetResult is the per-asset outcome of a run or bulk operation.
// Batch operations collect these instead of failing the whole batch on
// one asset's error.
type AssetResult struct {
	Asset       string
	Status      DeployStatus
	Version     string
	RowsLoaded  int64
	Error       string
	IngestMS    int64
	TransformMS int64
}

// Failed reports whether the asset attempt ended in a failure state.
func (r AssetResult) Failed() bool {
	return r.Status == DeployStatusFailed
}
