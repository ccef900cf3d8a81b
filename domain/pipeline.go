package domain

import (
	"strings"
	"time"
)

// PipelineDependency is one entry of pipeline_details.dependencies
// (spec.md §3, §4.D step 2).
type PipelineDependency struct {
	Pipeline string `json:"pipeline"`
}

// PipelineDetails is the opaque planner-supplied payload; only
// "dependencies" and "title" are read directly, the rest round-trips
// (spec.md §9).
type PipelineDetails map[string]any

func (d PipelineDetails) Title() string {
	v, _ := d["title"].(string)
	return v
}

func (d PipelineDetails) Dependencies() []PipelineDependency {
	raw, ok := d["dependencies"].([]any)
	if !ok {
		return nil
	}
	deps := make([]PipelineDependency, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		p, _ := m["pipeline"].(string)
		deps = append(deps, PipelineDependency{Pipeline: StripPipelinePrefix(p)})
	}
	return deps
}

// StripPipelinePrefix removes a leading "./" from a pipeline id, as both
// storage/lookup and the status reducer require (spec.md §3, §4.D).
func StripPipelinePrefix(id string) string {
	return strings.TrimPrefix(id, "./")
}

// Pipeline is one node in a flow's execution graph, for one revision
// (spec.md §3).
type Pipeline struct {
	PipelineID      string          `json:"pipeline_id"`
	FlowID          string          `json:"flow_id"`
	Title           string          `json:"title"`
	PipelineDetails PipelineDetails `json:"pipeline_details"`
	Status          RevisionStatus  `json:"status"`
	Errors          []string        `json:"errors,omitempty"`
	Stats           map[string]any  `json:"stats,omitempty"`
	Logs            []string        `json:"logs,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PipelinePatch is a partial update applied by UpdatePipeline. Zero/nil
// fields are left untouched when merged with mergo.WithOverride, same as
// RevisionPatch.
type PipelinePatch struct {
	Status    RevisionStatus `json:"status,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
	Stats     map[string]any `json:"stats,omitempty"`
	Logs      []string       `json:"logs,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
}

// Apply merges patch onto a copy of p (spec.md §4.B, UpdatePipeline).
func (patch PipelinePatch) Apply(p Pipeline) (Pipeline, error) {
	src := Pipeline{
		Status:    patch.Status,
		Errors:    patch.Errors,
		Stats:     patch.Stats,
		Logs:      patch.Logs,
		UpdatedAt: patch.UpdatedAt,
	}
	if err := mergePipeline(&p, src); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}
