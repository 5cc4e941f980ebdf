package mutation

import (
	"errors"
	"math/rand"
	"sort"

	"nevo/internal/genome"
)

// Set is a named dispatch table of mutation operators.
type Set struct {
	byName map[string]Operator
}

// NewSet builds a set from the given operators; later duplicates win.
func NewSet(ops ...Operator) *Set {
	s := &Set{byName: make(map[string]Operator, len(ops))}
	for _, op := range ops {
		s.byName[op.Name()] = op
	}
	return s
}

// DefaultOperators returns every built-in operator with default parameters.
func DefaultOperators() []Operator {
	return []Operator{
		AddNode{},
		SubNode{},
		AddConn{},
		SubConn{},
		ModWeight{},
		ModBias{},
		ModActivation{},
		AddSelfConn{},
		SubSelfConn{},
		AddGate{},
		SubGate{},
		AddBackConn{},
		SubBackConn{},
		SwapNodes{},
		ReinitWeight{},
		BatchNorm{},
		AddLSTMNode{},
		AddGRUNode{},
	}
}

// DefaultSet is NewSet over DefaultOperators.
func DefaultSet() *Set {
	return NewSet(DefaultOperators()...)
}

// Lookup returns the operator registered under name.
func (s *Set) Lookup(name string) (Operator, bool) {
	op, ok := s.byName[name]
	return op, ok
}

// Names lists the registered operator names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch applies the named operator to g. An unknown name or an operator
// with no eligible choice is a no-op, not an error; applied reports whether
// the genome actually changed.
func (s *Set) Dispatch(rng *rand.Rand, g *genome.Genome, name string) (applied bool, err error) {
	op, ok := s.byName[name]
	if !ok {
		g.Config().Warnf("mutation: unknown operator %q, skipping", name)
		return false, nil
	}
	if err := op.Apply(rng, g); err != nil {
		if errors.Is(err, ErrNoChoice) || errors.Is(err, ErrAcyclic) {
			return false, nil
		}
		return false, err
	}
	g.MarkTopologyDirty()
	return true, nil
}

// Apply runs a concrete operator through the same soft-failure policy as
// Dispatch, for callers that already hold the operator value.
func Apply(rng *rand.Rand, g *genome.Genome, op Operator) (bool, error) {
	if err := op.Apply(rng, g); err != nil {
		if errors.Is(err, ErrNoChoice) || errors.Is(err, ErrAcyclic) {
			return false, nil
		}
		return false, err
	}
	g.MarkTopologyDirty()
	return true, nil
}
