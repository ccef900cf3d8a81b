// Package external defines the boundary interfaces for the flow manager's
// out-of-scope collaborators (spec.md §1, §6): the Planner, the Verifyer,
// the PipelineRunner, and the three failure-event fanout sinks plus the
// descriptor store. The core depends only on these interfaces; concrete
// adapters live in this package's subdirectories and are wired in cmd/.
package external

import (
	"context"

	"github.com/datopian/flowmanager/domain"
)

// PlannedPipeline is one (pipeline_id, details) pair produced by the
// Planner (spec.md §6, "Planner contract").
type PlannedPipeline struct {
	PipelineID string
	Details    domain.PipelineDetails
}

// Planner is a pure function from (revision, spec) to a pipeline graph.
type Planner interface {
	Plan(ctx context.Context, revision int, spec domain.Spec, allowedTypes []string) ([]PlannedPipeline, error)
}

// Permissions carries the per-user quota the submission service enforces
// (spec.md §4.C step 4).
type Permissions struct {
	UserID         string
	MaxDatasetNum  int
}

// Verifyer validates a bearer token and returns user identity + quota.
// A nil result with a nil error means "no identity" (spec.md §6).
type Verifyer interface {
	ExtractPermissions(ctx context.Context, token string) (*Permissions, error)
}

// StatusCallback is invoked by the Runner from arbitrary goroutines for
// every pipeline status transition (spec.md §6, "Runner contract").
type StatusCallback func(ctx context.Context, pipelineID string, state string, errs []string, stats map[string]any)

// Runner executes a pipeline graph and streams status events back via cb.
// serializedPipelines is the YAML document mapping pipeline_id ->
// pipeline_details described in spec.md §6.
type Runner interface {
	Start(ctx context.Context, flowID string, serializedPipelines []byte, cb StatusCallback, verbosity int) error
}

// EventRecord is the fixed positional-field event emitted on every
// terminal flow (spec.md §4.G).
type EventRecord struct {
	Source      string
	Event       string
	Outcome     string
	Findability string
	Actor       string
	Dataset     string
	Owner       string
	OwnerID     string
	FlowID      string
	PipelineID  string
	Payload     map[string]any
}

// EventSink is the event bus collaborator. A returned error is logged and
// dropped by the FailureFanout worker; it is never passed on to the
// reducer (spec.md §4.G, §7).
type EventSink interface {
	Send(ctx context.Context, e EventRecord) error
}

// Incident is the payload posted to the incident reporter.
type Incident struct {
	Title  string
	Owner  string
	Errors []string
}

type IncidentReporter interface {
	Report(ctx context.Context, inc Incident) error
}

// DatasetDocument is the search-index document schema (spec.md §6).
type DatasetDocument struct {
	ID          string
	Name        string
	Title       string
	Description string
	Certified   bool
	Datapackage map[string]any
	Datahub     map[string]any
}

type SearchIndexer interface {
	Index(ctx context.Context, doc DatasetDocument) error
}

// DescriptorStore fetches the generated datapackage.json artifact for a
// flow (spec.md §4.D step 7, §6, GLOSSARY "Descriptor").
type DescriptorStore interface {
	GetDescriptor(ctx context.Context, flowID string) (map[string]any, error)
}
