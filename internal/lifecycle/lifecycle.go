// Package lifecycle implements the guarded status transitions shared by
// production orders and production batches.
package lifecycle

import (
	"ricemill/internal/apperror"
)

// Precondition inspects the subject before a transition is applied. A nil
// return lets the transition through.
type Precondition[T any] func(subject T) error

// Transition lists the statuses a subject may leave from to reach To.
type Transition[S ~string, T any] struct {
	From    []S
	To      S
	Require Precondition[T]
	// Rejection overrides the error kind reported when the current status is
	// not one of From. Defaults to INVALID_TRANSITION.
	Rejection apperror.Kind
}

type edge[T any] struct {
	require Precondition[T]
}

// Machine is an immutable transition table.
type Machine[S ~string, T any] struct {
	entity     string
	table      map[S]map[S]edge[T]
	rejections map[S]apperror.Kind
	order      []S
}

// New builds a Machine for the named entity ("production order", "batch").
func New[S ~string, T any](entity string, transitions ...Transition[S, T]) *Machine[S, T] {
	m := &Machine[S, T]{
		entity:     entity,
		table:      make(map[S]map[S]edge[T]),
		rejections: make(map[S]apperror.Kind),
	}
	for _, tr := range transitions {
		for _, from := range tr.From {
			if _, ok := m.table[from]; !ok {
				m.table[from] = make(map[S]edge[T])
			}
			m.table[from][tr.To] = edge[T]{require: tr.Require}
		}
		if tr.Rejection != "" {
			m.rejections[tr.To] = tr.Rejection
		}
		m.order = append(m.order, tr.To)
	}
	return m
}

// Can reports whether the table lists from -> to, ignoring preconditions.
func (m *Machine[S, T]) Can(from, to S) bool {
	_, ok := m.table[from][to]
	return ok
}

// Targets returns the statuses reachable from the given status in
// declaration order.
func (m *Machine[S, T]) Targets(from S) []S {
	out := make([]S, 0, len(m.table[from]))
	seen := make(map[S]bool)
	for _, to := range m.order {
		if seen[to] {
			continue
		}
		seen[to] = true
		if _, ok := m.table[from][to]; ok {
			out = append(out, to)
		}
	}
	return out
}

// Check validates the move from -> to for subject and returns a typed error
// when the move is not allowed.
func (m *Machine[S, T]) Check(subject T, from, to S) error {
	e, ok := m.table[from][to]
	if !ok {
		kind := apperror.KindInvalidTransition
		if k, found := m.rejections[to]; found {
			kind = k
		}
		return apperror.New(kind, "%s cannot move from %s to %s", m.entity, from, to)
	}
	if e.require != nil {
		if err := e.require(subject); err != nil {
			return err
		}
	}
	return nil
}
