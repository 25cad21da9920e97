// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package materialize

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kaggleLikeZip returns a zip archive with the nested layout of the Kaggle fish dataset, including
// the ground-truth mask directories.
func kaggleLikeZip(t *testing.T, extraEntries ...string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, content []byte) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	for _, class := range []string{"Shrimp", "Trout"} {
		for _, file := range []string{"00001.png", "00002.png"} {
			add("Fish_Dataset/Fish_Dataset/"+class+"/"+class+"/"+file, []byte("not really a png"))
			add("Fish_Dataset/Fish_Dataset/"+class+"/"+class+" GT/"+file, []byte("mask"))
		}
	}
	add("Fish_Dataset/README.txt", []byte("fish"))
	for _, name := range extraEntries {
		add(name, []byte("extra"))
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestMaterializeURL(t *testing.T) {
	archive := kaggleLikeZip(t)
	var numRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		numRequests.Add(1)
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	destDir := t.TempDir()
	src := Source{URL: server.URL + "/datasets/fish.zip", Checksum: sha256Hex(archive)}
	root, err := Materialize(context.Background(), src, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "fish", "Fish_Dataset", "Fish_Dataset"), root)
	assert.FileExists(t, filepath.Join(destDir, "fish.zip"))

	m, err := manifest.Build(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"Shrimp", "Trout"}, m.Classes())
	assert.Equal(t, 4, m.Len())

	// Second call reuses the downloaded archive and the extracted tree.
	root2, err := Materialize(context.Background(), src, destDir)
	require.NoError(t, err)
	assert.Equal(t, root, root2)
	assert.Equal(t, int32(1), numRequests.Load())

	// Explicit sub-directory.
	src.Subdir = KaggleSubdir
	root3, err := Materialize(context.Background(), src, destDir)
	require.NoError(t, err)
	assert.Equal(t, root, root3)

	src.Subdir = "Salmon"
	_, err = Materialize(context.Background(), src, destDir)
	var layoutErr *fish.DataLayoutError
	require.True(t, errors.As(err, &layoutErr))
}

func TestMaterializeChecksumMismatch(t *testing.T) {
	archive := kaggleLikeZip(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	destDir := t.TempDir()
	_, err := Materialize(context.Background(), Source{URL: server.URL + "/fish.zip", Checksum: sha256Hex([]byte("other"))}, destDir)
	require.ErrorContains(t, err, "sha256")
	assert.NoFileExists(t, filepath.Join(destDir, "fish.zip"))
	assert.NoDirExists(t, filepath.Join(destDir, "fish"))
}

func TestMaterializeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()
	destDir := t.TempDir()
	_, err := Materialize(context.Background(), Source{URL: server.URL + "/fish.zip"}, destDir)
	require.ErrorContains(t, err, "404")
	assert.NoFileExists(t, filepath.Join(destDir, "fish.zip"))
}

func TestMaterializeZipAndDir(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(zipPath, kaggleLikeZip(t), 0644))
	destDir := t.TempDir()
	root, err := Materialize(context.Background(), Source{ZipPath: zipPath}, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "archive", "Fish_Dataset", "Fish_Dataset"), root)

	// The extracted tree as a directory source, used in place.
	root2, err := Materialize(context.Background(), Source{Dir: filepath.Join(destDir, "archive")}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, root, root2)

	_, err = Materialize(context.Background(), Source{Dir: t.TempDir()}, destDir)
	var layoutErr *fish.DataLayoutError
	require.True(t, errors.As(err, &layoutErr))

	_, err = Materialize(context.Background(), Source{ZipPath: zipPath, Dir: destDir}, destDir)
	require.Error(t, err)
	_, err = Materialize(context.Background(), Source{}, destDir)
	require.Error(t, err)
}

func TestUnzipRejectsEscapingEntries(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	require.NoError(t, os.WriteFile(zipPath, kaggleLikeZip(t, "../evil.png"), 0644))
	destDir := t.TempDir()
	target := filepath.Join(destDir, "evil")
	err := UnzipIfMissing(zipPath, target)
	require.ErrorContains(t, err, "outside of the extraction directory")
	assert.NoDirExists(t, target)
	assert.NoFileExists(t, filepath.Join(destDir, "evil.png"))
}

func TestFindRoot(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	// Flat layout: class directories holding the images directly.
	write("data/flat/Shrimp/a.png")
	write("data/flat/Trout/b.PNG")
	root, err := FindRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "flat"), root)

	// A single class directory isn't a dataset root.
	single := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(single, "Trout"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(single, "Trout", "a.png"), []byte("x"), 0644))
	_, err = FindRoot(single)
	var layoutErr *fish.DataLayoutError
	require.True(t, errors.As(err, &layoutErr))
}

func TestZipNameFromURL(t *testing.T) {
	assert.Equal(t, "fish.zip", zipNameFromURL("https://example.com/a/fish.zip"))
	assert.Equal(t, "a-large-scale-fish-dataset.zip", zipNameFromURL(KaggleURL))
	assert.Equal(t, defaultZipName, zipNameFromURL("https://example.com/"))
}
