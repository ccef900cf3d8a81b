package domain

import "time"

// Spec is the opaque, user-supplied dataset description (spec.md §9:
// "Dynamic dict blobs"). Only the fields the core actually reads are
// exposed through typed accessors below; everything else round-trips
// untouched because callers hold the same map.
type Spec map[string]any

func (s Spec) meta() map[string]any {
	if s == nil {
		return nil
	}
	m, _ := s["meta"].(map[string]any)
	return m
}

// OwnerID reads spec.meta.ownerid.
func (s Spec) OwnerID() (string, bool) {
	v, ok := s.meta()["ownerid"]
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// DatasetName reads spec.meta.dataset.
func (s Spec) DatasetName() string {
	v, _ := s.meta()["dataset"].(string)
	return v
}

// Owner reads spec.meta.owner (display name, distinct from OwnerID).
func (s Spec) Owner() string {
	v, _ := s.meta()["owner"].(string)
	return v
}

// Findability reads spec.meta.findability.
func (s Spec) Findability() string {
	v, _ := s.meta()["findability"].(string)
	return v
}

// SetUpdateTime writes spec.meta.update_time, mirroring
// flowmanager/config.py's update_time_setter.
func (s Spec) SetUpdateTime(t time.Time) {
	m := s.meta()
	if m == nil {
		m = map[string]any{}
		s["meta"] = m
	}
	m["update_time"] = t.Format(time.RFC3339Nano)
}

// SetCreateTime writes spec.meta.create_time.
func (s Spec) SetCreateTime(t time.Time) {
	m := s.meta()
	if m == nil {
		m = map[string]any{}
		s["meta"] = m
	}
	m["create_time"] = t.Format(time.RFC3339Nano)
}

// Schedule reads the raw "schedule" field, untyped — the schedule package
// validates and parses it.
func (s Spec) Schedule() (any, bool) {
	v, ok := s["schedule"]
	return v, ok
}

// Dataset is a logical job owned by a user (spec.md §3).
type Dataset struct {
	Identifier    string     `json:"identifier"`
	Owner         string     `json:"owner"`
	Spec          Spec       `json:"spec"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
	Certified     bool       `json:"certified"`
}
