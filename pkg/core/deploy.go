package core

import (
	"fmt"
	"time"
)

// DeployStatus is the lifecycle state of one asset execution attempt.
type DeployStatus string

const (
	DeployStatusPending      DeployStatus = "pending"
	DeployStatusIngesting    DeployStatus = "ingesting"
	DeployStatusTransforming DeployStatus = "transforming"
	DeployStatusBuilt        DeployStatus = "built"
	DeployStatusSwapped      DeployStatus = "swapped"
	DeployStatusFailed       DeployStatus = "failed"
	DeployStatusSkipped      DeployStatus = "skipped"
)

// MaxHistory bounds the per-asset deployment history. The oldest entry is
// rotated out when a successful swap would exceed it.
const MaxHistory = 10

// HistoryEntry is one immutable fact in an asset's deployment history.
type HistoryEntry struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// DeploymentRecord is the durable record of an asset's live version and
// version history within one namespace. "Current" is a pointer into the
// append-only history, never a rewrite of it.
type DeploymentRecord struct {
	Namespace string
	Asset     string

	// LiveVersion is the version the public-facing reference points at.
	LiveVersion string

	// History holds prior versions, oldest first. Rollback repoints
	// LiveVersion to an earlier entry without removing anything.
	History []HistoryEntry

	// Revision is the optimistic-concurrency token for compare-and-set
	// updates. Zero means the record does not exist yet.
	Revision int64

	UpdatedAt time.Time
}

// TargetName returns the deterministic version-qualified physical target
// for an asset version within a namespace.
func TargetName(namespace, asset, version string) string {
	return fmt.Sprintf("%s.%s__v%s", namespace, asset, version)
}

// RawTargetName returns the version-qualified target ingestion writes
// into, kept alongside the transform target so {{ source }} always
// resolves to same-version raw data.
func RawTargetName(namespace, asset, version string) string {
	return fmt.Sprintf("%s.%s__raw_v%s", namespace, asset, version)
}

// LiveName returns the public-facing reference (view or alias) consumers
// read from. The swap repoints it atomically.
func LiveName(namespace, asset string) string {
	return fmt.Sprintf("%s.%s", namespace, asset)
}
