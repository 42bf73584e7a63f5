package space

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	got, err := ParseType("workspace")
	require.NoError(t, err)
	assert.Equal(t, TypeWorkspace, got)

	got, err = ParseType("userspace")
	require.NoError(t, err)
	assert.Equal(t, TypeUserspace, got)

	_, err = ParseType("teamspace")
	assert.Error(t, err)
}

func TestParseStorageType(t *testing.T) {
	for _, s := range []string{"doc", "blob", "sync"} {
		got, err := ParseStorageType(s)
		require.NoError(t, err)
		assert.Equal(t, StorageType(s), got)
	}

	_, err := ParseStorageType("index")
	assert.Error(t, err)
}

func TestKey_NormalizesID(t *testing.T) {
	// "é" as e + combining acute accent vs the precomposed form
	decomposed := NewKey(TypeWorkspace, "cafe\u0301")
	composed := NewKey(TypeWorkspace, "caf\u00e9")

	assert.Equal(t, composed, decomposed)
	assert.Equal(t, "workspace:caf\u00e9", decomposed.String())
}

func TestKey_Validate(t *testing.T) {
	assert.NoError(t, NewKey(TypeUserspace, "u1").Validate())
	assert.Error(t, NewKey(TypeUserspace, "").Validate())
	assert.Error(t, Key{Type: "bogus", ID: "x"}.Validate())
}

func TestJSONFieldNaming(t *testing.T) {
	data, err := json.Marshal(BlobRecord{Key: "k", CreatedAt: time.Unix(0, 0)})
	require.NoError(t, err)

	assert.Contains(t, string(data), `"createdAt"`)
	assert.NotContains(t, string(data), `"deletedAt"`)

	data, err = json.Marshal(DocUpdate{DocID: "d"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"docId"`)
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123_000_000, time.UTC)
	assert.Equal(t, ts, FromMillis(ToMillis(ts)))
	assert.Equal(t, int64(0), ToMillis(time.Time{}))
}
