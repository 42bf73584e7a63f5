package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbstore/internal/crdt"
)

func TestUnionMerger_OrderIndependent(t *testing.T) {
	m := UnionMerger{}
	a := Entries("a", "c")
	b := Entries("b")
	c := Entries("c", "d")

	first, err := m.Merge(a, b, c)
	require.NoError(t, err)
	second, err := m.Merge(c, a, b)
	require.NoError(t, err)

	assert.Equal(t, Entries("a", "b", "c", "d"), first)
	assert.Equal(t, first, second)
}

func TestUnionMerger_Idempotent(t *testing.T) {
	m := UnionMerger{}
	once, err := m.Merge(Entries("x"))
	require.NoError(t, err)
	twice, err := m.Merge(once, Entries("x"))
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestUnionMerger_Malformed(t *testing.T) {
	_, err := UnionMerger{}.Merge(Entries("ok"), Entries("!bad"))
	require.Error(t, err)
	assert.ErrorIs(t, err, crdt.ErrMalformedUpdate)
}

func TestUnionMerger_Empty(t *testing.T) {
	out, err := UnionMerger{}.Merge(nil, []byte{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
