// Package testutil provides deterministic collaborators for tests.
package testutil

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/roach88/nbstore/internal/crdt"
)

// MalformedPrefix marks an entry UnionMerger refuses to merge.
const MalformedPrefix = "!"

// UnionMerger treats a binary as a set of newline-separated entries and
// merges by sorted set union. Its output depends only on the set of entries,
// never on the order of inputs, so merged bytes can be compared directly.
type UnionMerger struct{}

var _ crdt.Merger = UnionMerger{}

// Merge implements crdt.Merger.
func (UnionMerger) Merge(updates ...[]byte) ([]byte, error) {
	set := map[string]struct{}{}
	for i, u := range updates {
		for _, line := range bytes.Split(u, []byte("\n")) {
			if len(line) == 0 {
				continue
			}
			if bytes.HasPrefix(line, []byte(MalformedPrefix)) {
				return nil, fmt.Errorf("%w: update %d: entry %q", crdt.ErrMalformedUpdate, i, line)
			}
			set[string(line)] = struct{}{}
		}
	}
	entries := lo.Keys(set)
	sort.Strings(entries)
	return Entries(entries...), nil
}

// Entries encodes entries the way UnionMerger stores them.
func Entries(entries ...string) []byte {
	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(e)
	}
	return buf.Bytes()
}
