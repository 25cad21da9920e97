// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package materialize makes a fish image dataset available on local disk, in the layout the manifest builder
// accepts: one directory per class, with the PNG images somewhere under it.
//
// The source can be a URL to a zip archive, a local zip archive or an already extracted directory.
// Work already done (downloaded archive, extracted tree) is not repeated.
package materialize

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/rissingh23/Fish-Species-Detection-CNN/pkg/fish"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

const (
	// KaggleURL of the "A Large Scale Fish Dataset" archive.
	KaggleURL = "https://www.kaggle.com/api/v1/datasets/download/crowww/a-large-scale-fish-dataset"

	// KaggleSubdir is where the class directories are, inside the extracted Kaggle archive.
	KaggleSubdir = "Fish_Dataset/Fish_Dataset"

	// defaultZipName is used when the URL path has no usable file name.
	defaultZipName = "dataset.zip"

	imageExt = ".png"
)

// Source of a dataset. Exactly one of URL, ZipPath or Dir must be set.
type Source struct {
	// URL of a zip archive to download.
	URL string

	// Checksum is the optional SHA-256 (hex) of the zip archive.
	Checksum string

	// ZipPath of a local zip archive.
	ZipPath string

	// Dir of an already extracted dataset, used in place.
	Dir string

	// Subdir is the dataset root relative to the extracted tree. If empty the root is located
	// automatically, see FindRoot.
	Subdir string

	// ShowProgress displays a progress bar while downloading.
	ShowProgress bool
}

func (src Source) validate() error {
	count := 0
	for _, s := range []string{src.URL, src.ZipPath, src.Dir} {
		if s != "" {
			count++
		}
	}
	if count != 1 {
		return errors.Errorf("materialize: exactly one of URL, ZipPath or Dir must be given, got %d", count)
	}
	return nil
}

// Materialize makes the dataset described by src available under destDir and returns its root: the directory
// with one sub-directory per class.
//
// Errors are *fish.DataLayoutError if the tree doesn't have the expected layout.
func Materialize(ctx context.Context, src Source, destDir string) (root string, err error) {
	if err = src.validate(); err != nil {
		return "", err
	}
	if destDir, err = fsutil.ReplaceTildeInDir(destDir); err != nil {
		return "", err
	}

	var treeDir string
	switch {
	case src.Dir != "":
		if treeDir, err = fsutil.ReplaceTildeInDir(src.Dir); err != nil {
			return "", err
		}
	default:
		zipPath := src.ZipPath
		if src.URL != "" {
			zipPath = filepath.Join(destDir, zipNameFromURL(src.URL))
			if err = DownloadIfMissing(ctx, src.URL, zipPath, src.ShowProgress); err != nil {
				return "", err
			}
		} else if zipPath, err = fsutil.ReplaceTildeInDir(zipPath); err != nil {
			return "", err
		}
		if src.Checksum != "" {
			if err = ValidateChecksum(zipPath, src.Checksum); err != nil {
				return "", err
			}
		}
		treeDir = filepath.Join(destDir, strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath)))
		if err = UnzipIfMissing(zipPath, treeDir); err != nil {
			return "", err
		}
	}

	if src.Subdir != "" {
		root = filepath.Join(treeDir, filepath.FromSlash(src.Subdir))
		info, statErr := os.Stat(root)
		if statErr != nil || !info.IsDir() {
			return "", &fish.DataLayoutError{Root: treeDir, Reason: fmt.Sprintf("sub-directory %q not found", src.Subdir), Err: statErr}
		}
		return root, nil
	}
	return FindRoot(treeDir)
}

// zipNameFromURL returns the last element of the URL path, with a ".zip" suffix.
func zipNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultZipName
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return defaultZipName
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}
	return name
}

// copyBytesBar copies bytes to an io.Writer while displaying a progress bar.
type copyBytesBar struct {
	w                             io.Writer
	bar                           *progressbar.ProgressBar
	amountWritten                 int64
	barUnit, numUnits, addedUnits int64
}

func newCopyBytesBar(w io.Writer, contentLength int64) *copyBytesBar {
	bar := &copyBytesBar{w: w, barUnit: 1}
	for contentLength > bar.barUnit*1024*1024 {
		bar.barUnit *= 1024
	}
	bar.numUnits = (contentLength + bar.barUnit - 1) / bar.barUnit
	bar.bar = progressbar.NewOptions(int(bar.numUnits),
		progressbar.OptionSetDescription(humanize.IBytes(uint64(contentLength))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	return bar
}

// Write implements io.Writer.
func (bar *copyBytesBar) Write(p []byte) (n int, err error) {
	n, err = bar.w.Write(p)
	bar.amountWritten += int64(n)
	toUnits := bar.amountWritten / bar.barUnit
	if toUnits > bar.addedUnits {
		_ = bar.bar.Add(int(toUnits - bar.addedUnits))
		bar.addedUnits = toUnits
	}
	return
}

func (bar *copyBytesBar) finish() {
	if bar.addedUnits < bar.numUnits {
		_ = bar.bar.Add(int(bar.numUnits - bar.addedUnits))
	}
	_ = bar.bar.Close()
	fmt.Println()
}

// Download the file at url to filePath. The file is first written to a temporary file, so an interrupted
// download never leaves a partial file at filePath.
func Download(ctx context.Context, url, filePath string, showProgressBar bool) (size int64, err error) {
	if err = os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return 0, errors.Wrapf(err, "failed to create the directory for %q", filePath)
	}
	resp, err := resty.New().R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", url)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()
	if resp.IsError() {
		return 0, errors.Errorf("failed downloading %q: %s", url, resp.Status())
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".download-*")
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating temporary file for %q", filePath)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	contentLength := resp.RawResponse.ContentLength
	if showProgressBar && contentLength > 0 {
		bar := newCopyBytesBar(tmp, contentLength)
		size, err = io.Copy(bar, body)
		bar.finish()
	} else {
		size, err = io.Copy(tmp, body)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "downloading %q to %q", url, filePath)
	}
	if err = tmp.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", tmpPath)
	}
	if err = os.Rename(tmpPath, filePath); err != nil {
		return 0, errors.Wrapf(err, "failed moving download to %q", filePath)
	}
	return size, nil
}

// DownloadIfMissing downloads url to filePath, unless filePath already exists.
func DownloadIfMissing(ctx context.Context, url, filePath string, showProgressBar bool) error {
	exists, err := fsutil.FileExists(filePath)
	if err != nil {
		return err
	}
	if exists {
		klog.V(1).Infof("%q already downloaded", filePath)
		return nil
	}
	klog.Infof("Downloading %s ...", url)
	size, err := Download(ctx, url, filePath, showProgressBar)
	if err != nil {
		return err
	}
	klog.Infof("Downloaded %s to %q", humanize.IBytes(uint64(size)), filePath)
	return nil
}

// ValidateChecksum verifies the SHA-256 of the file at path. If it doesn't match, the file is removed, so
// the next attempt downloads it again.
func ValidateChecksum(path, checkHash string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open file for checksum")
	}
	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	_ = f.Close()
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", path)
	}
	fileHash := hex.EncodeToString(hasher.Sum(nil))
	if fileHash != strings.ToLower(checkHash) {
		if e2 := os.Remove(path); e2 != nil {
			klog.Errorf("Failed to remove %q, which failed the checksum test, please remove it: %v", path, e2)
		}
		return errors.Errorf("file %q sha256 hash is %q, but expected %q, file deleted", path, fileHash, checkHash)
	}
	return nil
}

// UnzipIfMissing extracts zipPath into targetDir, unless targetDir already exists.
// Extraction happens in a temporary sibling directory, renamed to targetDir when complete.
func UnzipIfMissing(zipPath, targetDir string) error {
	exists, err := fsutil.FileExists(targetDir)
	if err != nil {
		return err
	}
	if exists {
		klog.V(1).Infof("%q already extracted", targetDir)
		return nil
	}
	parent := filepath.Dir(targetDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %q", parent)
	}
	tmpDir, err := os.MkdirTemp(parent, ".unzip-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary directory in %q", parent)
	}
	if err := Unzip(zipPath, tmpDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return err
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return errors.Wrapf(err, "failed to move extracted files to %q", targetDir)
	}
	return nil
}

// Unzip extracts all the files of zipPath under baseDir. Entries that would land outside baseDir are rejected.
func Unzip(zipPath, baseDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open zip file %q", zipPath)
	}
	defer func() { _ = r.Close() }()

	baseDir = filepath.Clean(baseDir)
	var numFiles int
	var numBytes uint64
	for _, f := range r.File {
		target := filepath.Join(baseDir, filepath.FromSlash(f.Name))
		if target != baseDir && !strings.HasPrefix(target, baseDir+string(os.PathSeparator)) {
			return errors.Errorf("zip file %q has entry %q outside of the extraction directory", zipPath, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrapf(err, "failed to create %q", target)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			klog.Warningf("Skipping non-regular zip entry %q", f.Name)
			continue
		}
		if err := extractFile(f, target); err != nil {
			return errors.WithMessagef(err, "while extracting %q", zipPath)
		}
		numFiles++
		numBytes += f.UncompressedSize64
	}
	klog.V(1).Infof("Extracted %d files (%s) from %q", numFiles, humanize.IBytes(numBytes), zipPath)
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", target)
	}
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open entry %q", f.Name)
	}
	defer func() { _ = rc.Close() }()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", target)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "failed to write %q", target)
	}
	return errors.Wrapf(out.Close(), "failed to close %q", target)
}

// FindRoot returns the shallowest directory under dir (dir included) that has at least two class
// sub-directories. A class sub-directory holds PNG files directly, or in a nested directory with the same name
// as the class (the Kaggle layout "Trout/Trout/00001.png").
// Among directories at the same depth, the first in lexicographic order wins.
func FindRoot(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", &fish.DataLayoutError{Root: dir, Reason: "dataset directory not found", Err: err}
	}
	level := []string{dir}
	for len(level) > 0 {
		var next []string
		for _, candidate := range level {
			subDirs, err := listSubDirs(candidate)
			if err != nil {
				return "", err
			}
			numClasses := 0
			for _, sub := range subDirs {
				if isClassDir(filepath.Join(candidate, sub), sub) {
					numClasses++
				}
			}
			if numClasses >= 2 {
				return candidate, nil
			}
			for _, sub := range subDirs {
				next = append(next, filepath.Join(candidate, sub))
			}
		}
		level = next
	}
	return "", &fish.DataLayoutError{Root: dir, Reason: "no directory with class sub-directories holding " + imageExt + " images"}
}

func listSubDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %q", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func isClassDir(dir, className string) bool {
	if hasImages(dir) {
		return true
	}
	return hasImages(filepath.Join(dir, className))
}

func hasImages(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), imageExt) {
			return true
		}
	}
	return false
}
