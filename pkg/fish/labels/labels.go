// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package labels implements the label index: a bijection between class names and the dense range of
// integers [0, NumClasses) used by the classifier outputs.
//
// The index carries a schema version and a content hash. The hash is stored alongside the model, and
// the prediction service refuses to serve a model with a label index that doesn't match it.
package labels

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
)

// SchemaVersion of the serialized label index.
const SchemaVersion = 1

// Index maps class names to indices and back. It is immutable once created.
type Index struct {
	names   []string
	indices map[string]int
	hash    string
}

// New creates an Index from the given class names: they are de-duplicated and sorted alphabetically,
// the first gets index 0.
func New(classNames []string) (*Index, error) {
	names := make([]string, 0, len(classNames))
	seen := make(map[string]bool, len(classNames))
	for _, name := range classNames {
		if name == "" {
			return nil, errors.New("labels: empty class name")
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("labels: no class names given")
	}
	sort.Strings(names)
	return fromOrderedNames(names), nil
}

// FromSamples creates the Index from the classes observed in the samples (normally the training subset).
func FromSamples(samples []manifest.Sample) (*Index, error) {
	return New(manifest.Classes(samples))
}

func fromOrderedNames(names []string) *Index {
	idx := &Index{names: names, indices: make(map[string]int, len(names))}
	for ii, name := range names {
		idx.indices[name] = ii
	}
	idx.hash = computeHash(names)
	return idx
}

// computeHash is the SHA-256 of the canonical "name\tindex\n" listing.
func computeHash(names []string) string {
	h := sha256.New()
	for ii, name := range names {
		_, _ = fmt.Fprintf(h, "%s\t%d\n", name, ii)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NumClasses returns the number of classes.
func (idx *Index) NumClasses() int { return len(idx.names) }

// Names returns a copy of the class names, ordered by index.
func (idx *Index) Names() []string {
	names := make([]string, len(idx.names))
	copy(names, idx.names)
	return names
}

// Hash of the index contents.
func (idx *Index) Hash() string { return idx.hash }

// Encode returns the index of the class name.
func (idx *Index) Encode(name string) (int, error) {
	i, found := idx.indices[name]
	if !found {
		return 0, errors.Errorf("labels: unknown class %q", name)
	}
	return i, nil
}

// Decode returns the class name for the index.
func (idx *Index) Decode(i int) (string, error) {
	if i < 0 || i >= len(idx.names) {
		return "", errors.Errorf("labels: index %d out of range [0, %d)", i, len(idx.names))
	}
	return idx.names[i], nil
}

// Invert returns the index→name mapping.
func (idx *Index) Invert() map[int]string {
	inverted := make(map[int]string, len(idx.names))
	for ii, name := range idx.names {
		inverted[ii] = name
	}
	return inverted
}

// Verify returns an error if hash doesn't match the index contents.
func (idx *Index) Verify(hash string) error {
	if hash != idx.hash {
		return errors.Errorf("labels: label index hash mismatch: expected %q, index has %q (classes %s)",
			hash, idx.hash, strings.Join(idx.names, ", "))
	}
	return nil
}

// String implements fmt.Stringer.
func (idx *Index) String() string {
	return fmt.Sprintf("labels.Index(%d classes, hash=%.12s)", len(idx.names), idx.hash)
}

// serialized is the JSON form of the Index.
type serialized struct {
	SchemaVersion int            `json:"schema_version"`
	Hash          string         `json:"hash"`
	Classes       map[string]int `json:"classes"`
}

// MarshalJSON implements json.Marshaler.
func (idx *Index) MarshalJSON() ([]byte, error) {
	return json.Marshal(serialized{
		SchemaVersion: SchemaVersion,
		Hash:          idx.hash,
		Classes:       idx.indices,
	})
}

// UnmarshalJSON implements json.Unmarshaler. It accepts the versioned form, verifying its hash, and the
// bare {"name": index} mapping.
func (idx *Index) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "labels: failed to parse label index")
	}
	var classes map[string]int
	var hash string
	if _, versioned := raw["schema_version"]; versioned {
		var s serialized
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "labels: failed to parse label index")
		}
		if s.SchemaVersion != SchemaVersion {
			return errors.Errorf("labels: unsupported label index schema version %d (supported: %d)",
				s.SchemaVersion, SchemaVersion)
		}
		classes, hash = s.Classes, s.Hash
	} else {
		if err := json.Unmarshal(data, &classes); err != nil {
			return errors.Wrap(err, "labels: failed to parse bare label mapping")
		}
	}

	names, err := denseNames(classes)
	if err != nil {
		return err
	}
	*idx = *fromOrderedNames(names)
	if hash != "" {
		return idx.Verify(hash)
	}
	return nil
}

// denseNames checks that classes maps to exactly [0, len(classes)) and returns the names ordered by index.
func denseNames(classes map[string]int) ([]string, error) {
	if len(classes) == 0 {
		return nil, errors.New("labels: label index has no classes")
	}
	names := make([]string, len(classes))
	for name, i := range classes {
		if i < 0 || i >= len(classes) {
			return nil, errors.Errorf("labels: class %q has index %d, outside of dense range [0, %d)", name, i, len(classes))
		}
		if names[i] != "" {
			return nil, errors.Errorf("labels: classes %q and %q share index %d", names[i], name, i)
		}
		if name == "" {
			return nil, errors.Errorf("labels: empty class name at index %d", i)
		}
		names[i] = name
	}
	return names, nil
}
