// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package labels

import (
	"encoding/json"
	"testing"

	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBijection(t *testing.T) {
	idx, err := FromSamples([]manifest.Sample{
		{Path: "1", Label: "trout"}, {Path: "2", Label: "shrimp"}, {Path: "3", Label: "sea bass"}, {Path: "4", Label: "trout"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, idx.NumClasses())
	assert.Equal(t, []string{"sea bass", "shrimp", "trout"}, idx.Names())

	for _, name := range idx.Names() {
		i, err := idx.Encode(name)
		require.NoError(t, err)
		decoded, err := idx.Decode(i)
		require.NoError(t, err)
		assert.Equal(t, name, decoded)
	}
	for i := range idx.NumClasses() {
		name, err := idx.Decode(i)
		require.NoError(t, err)
		encoded, err := idx.Encode(name)
		require.NoError(t, err)
		assert.Equal(t, i, encoded)
	}

	trout, err := idx.Encode("trout")
	require.NoError(t, err)
	assert.Equal(t, 2, trout)
	assert.Equal(t, "trout", idx.Invert()[2])

	_, err = idx.Encode("salmon")
	require.Error(t, err)
	_, err = idx.Decode(3)
	require.Error(t, err)
	_, err = idx.Decode(-1)
	require.Error(t, err)
}

func TestNewErrors(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	_, err = New([]string{"a", ""})
	require.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	idx, err := New([]string{"trout", "shrimp", "gilt head bream"})
	require.NoError(t, err)
	data, err := json.Marshal(idx)
	require.NoError(t, err)

	var loaded Index
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, idx.Names(), loaded.Names())
	assert.Equal(t, idx.Hash(), loaded.Hash())
	require.NoError(t, loaded.Verify(idx.Hash()))
	require.Error(t, loaded.Verify("0000"))
}

func TestJSONHashMismatch(t *testing.T) {
	// Indices swapped but hash kept: must fail loudly.
	data := []byte(`{"schema_version":1,"hash":"` + mustNew(t, "a", "b").Hash() + `","classes":{"a":1,"b":0}}`)
	var idx Index
	err := json.Unmarshal(data, &idx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestJSONLegacyAndInvalid(t *testing.T) {
	var idx Index
	require.NoError(t, json.Unmarshal([]byte(`{"Black Sea Sprat":0,"Trout":1}`), &idx))
	assert.Equal(t, []string{"Black Sea Sprat", "Trout"}, idx.Names())

	for _, invalid := range []string{
		`{"a":0,"b":2}`,
		`{"a":0,"b":0}`,
		`{}`,
		`{"schema_version":2,"hash":"x","classes":{"a":0}}`,
		`[1,2]`,
	} {
		var idx Index
		require.Error(t, json.Unmarshal([]byte(invalid), &idx), "expected error for %s", invalid)
	}
}

func mustNew(t *testing.T, names ...string) *Index {
	idx, err := New(names)
	require.NoError(t, err)
	return idx
}
