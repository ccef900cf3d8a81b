package domain

import "strconv"

// RevisionSelector is the tagged variant for the polymorphic revision key
// ("latest" | "successful" | int) described in spec.md §9.
type RevisionSelector struct {
	kind  selectorKind
	exact int
}

type selectorKind int

const (
	selectorLatest selectorKind = iota
	selectorSuccessful
	selectorExact
)

func Latest() RevisionSelector    { return RevisionSelector{kind: selectorLatest} }
func Successful() RevisionSelector { return RevisionSelector{kind: selectorSuccessful} }
func Exact(n int) RevisionSelector { return RevisionSelector{kind: selectorExact, exact: n} }

func (s RevisionSelector) IsLatest() bool    { return s.kind == selectorLatest }
func (s RevisionSelector) IsSuccessful() bool { return s.kind == selectorSuccessful }

// Int returns the exact revision number and true if this selector names one.
func (s RevisionSelector) Int() (int, bool) {
	if s.kind == selectorExact {
		return s.exact, true
	}
	return 0, false
}

// ParseRevisionSelector maps the HTTP path parameter ("latest", "successful",
// or a base-10 integer) to a RevisionSelector.
func ParseRevisionSelector(raw string) (RevisionSelector, bool) {
	switch raw {
	case "latest":
		return Latest(), true
	case "successful":
		return Successful(), true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return RevisionSelector{}, false
	}
	return Exact(n), true
}
