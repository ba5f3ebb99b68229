// Package scan implements the signal scanners that turn a project snapshot
// into partial candidate sets.
//
// Each [Scanner] reads only its own portion of the [Input] and the immutable
// rule registry, so scanners can run concurrently. A failure to read one item
// is reported as a [SourceScanError] and never aborts the scan.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/macropower/loadout/pkg/candidate"
	"github.com/macropower/loadout/pkg/manifest"
	"github.com/macropower/loadout/pkg/rule"
)

// Default weights per signal tier.
const (
	DefaultFileTypeWeight = 10
	DefaultManifestWeight = 8
	DefaultKeywordWeight  = 5
)

// Scanner produces a partial candidate set from one kind of signal.
type Scanner interface {
	Source() candidate.Source
	Scan(ctx context.Context, in *Input) (candidate.Set, []*SourceScanError)
}

// Rules provides the rules scanners match against.
type Rules interface {
	Rules() []*rule.Rule
}

// Input is a snapshot of the project context for one discovery run.
type Input struct {
	decls *manifest.Lazy

	// ActiveFile is the file currently being edited.
	ActiveFile string
	// Request is the free-text user request.
	Request string
	// OpenFiles are other open files.
	OpenFiles []string
	// Manifests are the dependency-declaration files at the project root.
	Manifests []manifest.File
}

// Files returns the active file followed by the open files, without
// duplicates or empty entries.
func (in *Input) Files() []string {
	files := make([]string, 0, len(in.OpenFiles)+1)
	for _, f := range slices.Concat([]string{in.ActiveFile}, in.OpenFiles) {
		if f == "" || slices.Contains(files, f) {
			continue
		}

		files = append(files, f)
	}

	return files
}

// Suffixes returns the sorted, distinct suffixes of [Input.Files].
func (in *Input) Suffixes() []string {
	suffixes := []string{}
	for _, f := range in.Files() {
		suffixes = append(suffixes, Suffix(f))
	}

	slices.Sort(suffixes)

	return slices.Compact(suffixes)
}

// Declarations returns the parsed manifests. Parsing happens once per
// [Input], on first use.
func (in *Input) Declarations() []*manifest.Declaration {
	if in.decls == nil {
		return manifest.ParseAll(in.Manifests)
	}

	return in.decls.Declarations()
}

// Prepare readies the input for concurrent use by several scanners.
func (in *Input) Prepare() *Input {
	if in.decls == nil {
		in.decls = manifest.NewLazy(in.Manifests)
	}

	return in
}

// Suffix returns the file-type suffix of path: its lower-cased extension, or
// its base name when it has none (for example "Dockerfile").
func Suffix(path string) string {
	base := filepath.Base(path)

	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return base
	}

	return strings.ToLower(ext)
}

// SourceScanError reports that a scanner could not use one input item.
type SourceScanError struct {
	Err    error
	Source candidate.Source
	Item   string
}

type sourceScanErrorView struct {
	Source candidate.Source `json:"source" yaml:"source"`
	Item   string           `json:"item" yaml:"item"`
	Error  string           `json:"error" yaml:"error"`
}

func (e *SourceScanError) view() sourceScanErrorView {
	return sourceScanErrorView{Source: e.Source, Item: e.Item, Error: e.Message()}
}

func (e *SourceScanError) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(e.view())
	if err != nil {
		return nil, fmt.Errorf("marshal scan error: %w", err)
	}

	return b, nil
}

func (e *SourceScanError) MarshalYAML() (any, error) {
	return e.view(), nil
}

func (e *SourceScanError) Error() string {
	return fmt.Sprintf("%s scanner: %s: %v", e.Source, e.Item, e.Err)
}

func (e *SourceScanError) Unwrap() error {
	return e.Err
}

// Message returns the underlying error message.
func (e *SourceScanError) Message() string {
	if e.Err == nil {
		return ""
	}

	return e.Err.Error()
}
