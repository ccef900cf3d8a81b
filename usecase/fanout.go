package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/datopian/flowmanager/domain"
	"github.com/datopian/flowmanager/external"
	"github.com/datopian/flowmanager/internal/metrics"
	"github.com/datopian/flowmanager/repository"
)

// fanoutJob is one unit of background work enqueued by the status
// reducer's terminal-flow handling (spec.md §4.D step 6-7, §4.G).
type fanoutJob struct {
	kind string // "event", "incident", "index"

	event    external.EventRecord
	incident external.Incident

	flowID            string
	datasetIdentifier string
}

// FailureFanout is the single-worker background queue described in
// spec.md §9 ("Side-effect fanout executor"): it runs event bus,
// incident reporter, descriptor fetch, and search-indexer calls off the
// reducer's critical path, preserving per-dataset ordering because one
// worker drains the queue in submission order.
type FailureFanout struct {
	events      external.EventSink
	incidents   external.IncidentReporter
	descriptors external.DescriptorStore
	index       external.SearchIndexer

	revisions repository.RevisionRepository

	queue  chan fanoutJob
	logger *slog.Logger
}

func NewFailureFanout(
	events external.EventSink,
	incidents external.IncidentReporter,
	descriptors external.DescriptorStore,
	index external.SearchIndexer,
	revisions repository.RevisionRepository,
	logger *slog.Logger,
	queueSize int,
) *FailureFanout {
	f := &FailureFanout{
		events:      events,
		incidents:   incidents,
		descriptors: descriptors,
		index:       index,
		revisions:   revisions,
		queue:       make(chan fanoutJob, queueSize),
		logger:      logger.With("component", "fanout"),
	}
	go f.run()
	return f
}

func (f *FailureFanout) run() {
	for job := range f.queue {
		metrics.FanoutQueueDepth.Set(float64(len(f.queue)))
		f.process(context.Background(), job)
	}
}

func (f *FailureFanout) process(ctx context.Context, job fanoutJob) {
	switch job.kind {
	case "event":
		if err := f.events.Send(ctx, job.event); err != nil {
			f.logger.WarnContext(ctx, "event send failed", "flow_id", job.event.FlowID, "error", err)
			metrics.FanoutJobsTotal.WithLabelValues("event", "error").Inc()
			return
		}
		metrics.FanoutJobsTotal.WithLabelValues("event", "ok").Inc()
	case "incident":
		if err := f.incidents.Report(ctx, job.incident); err != nil {
			f.logger.WarnContext(ctx, "incident report failed", "title", job.incident.Title, "error", err)
			metrics.FanoutJobsTotal.WithLabelValues("incident", "error").Inc()
			return
		}
		metrics.FanoutJobsTotal.WithLabelValues("incident", "ok").Inc()
	case "index":
		f.indexDescriptor(ctx, job.flowID, job.datasetIdentifier)
	}
}

// EnqueueEvent queues the terminal-flow event described in spec.md §4.D
// step 6b.
func (f *FailureFanout) EnqueueEvent(e external.EventRecord) {
	select {
	case f.queue <- fanoutJob{kind: "event", event: e}:
	default:
		f.logger.Warn("fanout queue full, dropping event", "flow_id", e.FlowID)
	}
}

// EnqueueIncident queues a failure incident (spec.md §4.D step 6c, §4.C).
func (f *FailureFanout) EnqueueIncident(inc external.Incident) {
	select {
	case f.queue <- fanoutJob{kind: "incident", incident: inc}:
	default:
		f.logger.Warn("fanout queue full, dropping incident", "title", inc.Title)
	}
}

// EnqueueDescriptorIndex queues the descriptor fetch + search-index push
// of spec.md §4.D step 7.
func (f *FailureFanout) EnqueueDescriptorIndex(flowID, datasetIdentifier string) {
	select {
	case f.queue <- fanoutJob{kind: "index", flowID: flowID, datasetIdentifier: datasetIdentifier}:
	default:
		f.logger.Warn("fanout queue full, dropping descriptor index", "flow_id", flowID)
	}
}

func (f *FailureFanout) indexDescriptor(ctx context.Context, flowID, datasetIdentifier string) {
	descriptor, err := f.descriptors.GetDescriptor(ctx, flowID)
	if err != nil {
		f.logger.WarnContext(ctx, "descriptor fetch failed", "flow_id", flowID, "error", err)
		metrics.FanoutJobsTotal.WithLabelValues("descriptor", "error").Inc()
		return
	}
	if descriptor == nil {
		metrics.FanoutJobsTotal.WithLabelValues("descriptor", "missing").Inc()
		return
	}

	_, err = f.revisions.GetRevision(ctx, datasetIdentifier, domain.Successful())
	noSuccessfulYet := errors.Is(err, domain.ErrRevisionNotFound)

	datahub, _ := descriptor["datahub"].(map[string]any)
	if noSuccessfulYet && datahub != nil {
		if findability, _ := datahub["findability"].(string); findability == "published" {
			datahub["findability"] = "unlisted"
		}
	}

	doc := documentFromDescriptor(descriptor, datahub)
	if err := f.index.Index(ctx, doc); err != nil {
		f.logger.WarnContext(ctx, "search index write failed", "flow_id", flowID, "error", err)
		metrics.FanoutJobsTotal.WithLabelValues("index", "error").Inc()
		return
	}
	metrics.FanoutJobsTotal.WithLabelValues("index", "ok").Inc()
}

// documentFromDescriptor projects a datapackage.json document onto the
// search-index schema of spec.md §6 ("Dataset document schema"),
// normalizing values recursively to primitive JSON types.
func documentFromDescriptor(descriptor map[string]any, datahub map[string]any) external.DatasetDocument {
	id, _ := descriptor["name"].(string)
	if datahub != nil {
		if v, ok := datahub["flowid"].(string); ok && v != "" {
			id = v
		}
	}
	title, _ := descriptor["title"].(string)
	description, _ := descriptor["description"].(string)
	certified, _ := descriptor["certified"].(bool)

	return external.DatasetDocument{
		ID:          id,
		Name:        id,
		Title:       title,
		Description: description,
		Certified:   certified,
		Datapackage: normalizeJSON(descriptor).(map[string]any),
		Datahub:     normalizeJSON(datahub).(map[string]any),
	}
}

// normalizeJSON recursively converts a decoded-JSON-like value tree to
// plain JSON-compatible primitives (spec.md §4.G: "decimals → floats;
// dates pass through; None/null preserved").
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeJSON(val)
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case nil:
		return nil
	default:
		return t
	}
}
