package model

import (
	"encoding/json"
	"fmt"
)

// Identifiable is implemented by catalog documents that can be referenced by ID.
type Identifiable interface {
	RefID() string
}

// Ref is a relationship field that is either a bare ID or the expanded document.
// Content queries return one or the other depending on query depth; callers
// use ID() and Resolve() instead of inspecting the shape.
type Ref[T Identifiable] struct {
	id       string
	expanded *T
}

// RefTo creates an unexpanded reference.
func RefTo[T Identifiable](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Expand creates a reference carrying the full document.
func Expand[T Identifiable](doc T) Ref[T] {
	return Ref[T]{id: doc.RefID(), expanded: &doc}
}

// ID returns the referenced ID regardless of expansion.
func (r Ref[T]) ID() string {
	return r.id
}

// Resolve returns the expanded document, or false when only the ID is known.
func (r Ref[T]) Resolve() (T, bool) {
	if r.expanded == nil {
		var zero T
		return zero, false
	}
	return *r.expanded, true
}

// IsZero reports whether the reference points at nothing.
func (r Ref[T]) IsZero() bool {
	return r.id == ""
}

// MarshalJSON writes the expanded document when present, otherwise the bare ID string.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.expanded != nil {
		return json.Marshal(r.expanded)
	}
	return json.Marshal(r.id)
}

// UnmarshalJSON accepts either a bare ID (string or number) or an expanded document.
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref[T]{id: id}
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*r = Ref[T]{id: num.String()}
		return nil
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding reference: %w", err)
	}
	*r = Expand(doc)
	return nil
}
