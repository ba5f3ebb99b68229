package scan

import (
	"context"
	"log/slog"

	"github.com/macropower/loadout/pkg/candidate"
	"github.com/macropower/loadout/pkg/rule"
)

// ScannerOpt configures a scanner.
type ScannerOpt func(*scanner)

// WithWeight sets the weight used by patterns that do not declare one.
func WithWeight(w int) ScannerOpt {
	return func(s *scanner) {
		s.weight = w
	}
}

type scanner struct {
	rules  Rules
	weight int
}

func newScanner(rules Rules, weight int, opts []ScannerOpt) scanner {
	s := scanner{rules: rules, weight: weight}
	for _, opt := range opts {
		opt(&s)
	}

	return s
}

// FileTypeScanner matches active and open files against rule file types.
type FileTypeScanner struct {
	scanner
}

// NewFileTypeScanner creates a [FileTypeScanner].
func NewFileTypeScanner(rules Rules, opts ...ScannerOpt) *FileTypeScanner {
	return &FileTypeScanner{scanner: newScanner(rules, DefaultFileTypeWeight, opts)}
}

func (s *FileTypeScanner) Source() candidate.Source {
	return candidate.SourceFileType
}

func (s *FileTypeScanner) Scan(ctx context.Context, in *Input) (candidate.Set, []*SourceScanError) {
	set := candidate.Set{}
	if ctx.Err() != nil {
		return set, nil
	}

	for _, f := range in.Files() {
		for _, r := range s.rules.Rules() {
			if w, ok := r.MatchFile(f, s.weight); ok {
				set.Add(r.ID, candidate.SourceFileType, w)
			}
		}
	}

	return set, nil
}

// ManifestScanner matches declared dependencies against rule dependency
// patterns.
type ManifestScanner struct {
	scanner
}

// NewManifestScanner creates a [ManifestScanner].
func NewManifestScanner(rules Rules, opts ...ScannerOpt) *ManifestScanner {
	return &ManifestScanner{scanner: newScanner(rules, DefaultManifestWeight, opts)}
}

func (s *ManifestScanner) Source() candidate.Source {
	return candidate.SourceManifest
}

func (s *ManifestScanner) Scan(ctx context.Context, in *Input) (candidate.Set, []*SourceScanError) {
	set := candidate.Set{}
	if ctx.Err() != nil {
		return set, nil
	}

	var errs []*SourceScanError
	for _, decl := range in.Declarations() {
		if decl.Err != nil {
			slog.DebugContext(ctx, "skip declaration file",
				slog.String("path", decl.File.Path),
				slog.Any("err", decl.Err),
			)

			errs = append(errs, &SourceScanError{
				Source: candidate.SourceManifest,
				Item:   decl.File.Path,
				Err:    decl.Err,
			})

			continue
		}

		name := decl.File.Name()
		for _, dep := range decl.Dependencies {
			for _, r := range s.rules.Rules() {
				if w, ok := r.MatchDependency(name, dep.Name, s.weight); ok {
					set.Add(r.ID, candidate.SourceManifest, w)
				}
			}
		}
	}

	return set, errs
}

// KeywordScanner matches the request text against rule keywords.
type KeywordScanner struct {
	scanner
}

// NewKeywordScanner creates a [KeywordScanner].
func NewKeywordScanner(rules Rules, opts ...ScannerOpt) *KeywordScanner {
	return &KeywordScanner{scanner: newScanner(rules, DefaultKeywordWeight, opts)}
}

func (s *KeywordScanner) Source() candidate.Source {
	return candidate.SourceKeyword
}

func (s *KeywordScanner) Scan(ctx context.Context, in *Input) (candidate.Set, []*SourceScanError) {
	set := candidate.Set{}
	if ctx.Err() != nil || in.Request == "" {
		return set, nil
	}

	folded := rule.Fold(in.Request)
	for _, r := range s.rules.Rules() {
		if w, ok := r.MatchRequest(folded, s.weight); ok {
			set.Add(r.ID, candidate.SourceKeyword, w)
		}
	}

	return set, nil
}
