// Package crdt provides the update-merge function consumed by doc storages.
//
// Storages treat CRDT binaries as opaque: they only need Merge to be pure,
// commutative and associative so that the replay order of updates does not
// change the merged document.
package crdt

import (
	"errors"
	"fmt"
	"sort"

	"github.com/automerge/automerge-go"
	"github.com/samber/lo"
)

// ErrMalformedUpdate is returned when an update binary cannot be decoded.
var ErrMalformedUpdate = errors.New("malformed update")

// Merger merges CRDT binaries into one.
type Merger interface {
	Merge(updates ...[]byte) ([]byte, error)
}

// MergerFunc adapts a function to Merger.
type MergerFunc func(updates ...[]byte) ([]byte, error)

// Merge calls f.
func (f MergerFunc) Merge(updates ...[]byte) ([]byte, error) {
	return f(updates...)
}

// Automerge merges automerge documents and change chunks.
type Automerge struct{}

var _ Merger = Automerge{}

// Merge collects the changes of every non-empty binary and replays them
// into a fresh document in causal order, ties broken by change hash. The
// saved bytes depend only on the set of changes, not on input order.
// Both saved documents and incremental changes are accepted.
func (Automerge) Merge(updates ...[]byte) ([]byte, error) {
	scratch := automerge.New()
	for i, u := range updates {
		if len(u) == 0 {
			continue
		}
		if err := scratch.LoadIncremental(u); err != nil {
			return nil, fmt.Errorf("%w: update %d: %v", ErrMalformedUpdate, i, err)
		}
	}
	changes, err := scratch.Changes()
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}

	doc := automerge.New()
	for _, ch := range causalOrder(changes) {
		if err := doc.Apply(ch); err != nil {
			return nil, fmt.Errorf("apply change %s: %w", ch.Hash(), err)
		}
	}
	return doc.Save(), nil
}

// causalOrder sorts changes so every change follows its dependencies.
// Among changes that are ready at the same time the smallest hash goes first.
func causalOrder(changes []*automerge.Change) []*automerge.Change {
	byHash := lo.KeyBy(changes, func(ch *automerge.Change) string { return ch.Hash().String() })
	pending := make(map[string]int, len(changes))
	dependents := make(map[string][]string, len(changes))
	for hash, ch := range byHash {
		for _, dep := range ch.Dependencies() {
			if _, ok := byHash[dep.String()]; !ok {
				continue
			}
			pending[hash]++
			dependents[dep.String()] = append(dependents[dep.String()], hash)
		}
	}

	var ready []string
	for hash := range byHash {
		if pending[hash] == 0 {
			ready = append(ready, hash)
		}
	}

	out := make([]*automerge.Change, 0, len(changes))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		out = append(out, byHash[next])
		for _, d := range dependents[next] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	return out
}
