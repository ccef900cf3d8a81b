package domain

// RevisionStatus is shared between DatasetRevision.Status and Pipeline.Status —
// both walk the same pending/running/success/failed state machine.
type RevisionStatus string

const (
	StatusPending RevisionStatus = "pending"
	StatusRunning RevisionStatus = "running"
	StatusSuccess RevisionStatus = "success"
	StatusFailed  RevisionStatus = "failed"
)

func (s RevisionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// PipelineSnapshotStatus is the upper-case projection stored in a revision's
// pipelines snapshot (spec.md §4.D step 4).
type PipelineSnapshotStatus string

const (
	SnapshotQueued     PipelineSnapshotStatus = "QUEUED"
	SnapshotInProgress PipelineSnapshotStatus = "INPROGRESS"
	SnapshotSucceeded  PipelineSnapshotStatus = "SUCCEEDED"
	SnapshotFailed     PipelineSnapshotStatus = "FAILED"
)

// FlowStatusCounts is the presence-set input to AggregateFlowStatus: how
// many pipelines of a flow sit in each status.
type FlowStatusCounts struct {
	Running int
	Pending int
	Success int
	Failed  int
}

// AggregateFlowStatus codifies the check_flow_status table of spec.md §4.B:
//
//	any running                                  -> running
//	pending present AND (success or failed present) -> running (mixed)
//	pending present, nothing else                -> pending
//	no pending, any failed                       -> failed
//	otherwise (only success, or empty)           -> success
//
// It is a pure function of the counts so it can be tested directly against
// the table without any database (spec.md §8, testable property 3).
func AggregateFlowStatus(c FlowStatusCounts) RevisionStatus {
	if c.Running > 0 {
		return StatusRunning
	}
	if c.Pending > 0 {
		if c.Success > 0 || c.Failed > 0 {
			return StatusRunning
		}
		return StatusPending
	}
	if c.Failed > 0 {
		return StatusFailed
	}
	return StatusSuccess
}

// ToSnapshotStatus implements the pending→QUEUED, running→INPROGRESS,
// success→SUCCEEDED, failed→FAILED projection used both by the reducer
// (§4.D step 4) and the info reader (§4.F).
func ToSnapshotStatus(s RevisionStatus) PipelineSnapshotStatus {
	switch s {
	case StatusPending:
		return SnapshotQueued
	case StatusRunning:
		return SnapshotInProgress
	case StatusSuccess:
		return SnapshotSucceeded
	case StatusFailed:
		return SnapshotFailed
	}
	return SnapshotQueued
}
