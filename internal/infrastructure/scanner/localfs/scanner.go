package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

type Layout string

const (
	// LayoutSingle watches one fixed file.
	LayoutSingle Layout = "single"
	// LayoutFlat picks the newest matching file of a directory.
	LayoutFlat Layout = "flat"
	// LayoutYear picks the newest numeric subdirectory, then its newest file.
	LayoutYear Layout = "year"
	// LayoutBatch returns every matching file, oldest first.
	LayoutBatch Layout = "batch"
)

func ParseLayout(v string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(v))); l {
	case LayoutSingle, LayoutFlat, LayoutYear, LayoutBatch:
		return l, nil
	}
	return "", fmt.Errorf("unknown layout %q", v)
}

type Options struct {
	Path     string
	Layout   Layout
	Kind     domain.SourceKind
	Patterns []string
	Suffixes domain.Suffixes
	// Exclude holds extra stem suffixes that are never candidates.
	Exclude []string
}

type Scanner struct {
	opts    Options
	exclude []string
}

func NewScanner(opts Options) *Scanner {
	if opts.Layout == "" {
		opts.Layout = LayoutFlat
	}
	exclude := append(opts.Suffixes.All(), opts.Exclude...)
	return &Scanner{opts: opts, exclude: exclude}
}

func (s *Scanner) Scan(_ context.Context) ([]domain.SourceFile, error) {
	switch s.opts.Layout {
	case LayoutSingle:
		return s.scanSingle()
	case LayoutYear:
		dir, err := s.newestYearDir()
		if err != nil {
			return nil, err
		}
		return s.newest(dir)
	case LayoutBatch:
		files, err := s.list(s.opts.Path, s.isCandidate)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("scan %s: %w", s.opts.Path, domain.ErrNoCandidateFile)
		}
		return files, nil
	default:
		return s.newest(s.opts.Path)
	}
}

// Quarantined lists the quarantine files modified after horizon.
func (s *Scanner) Quarantined(_ context.Context, horizon time.Time) ([]domain.SourceFile, error) {
	if s.opts.Suffixes.Quarantine == "" {
		return nil, nil
	}

	dirs := []string{s.opts.Path}
	switch s.opts.Layout {
	case LayoutSingle:
		dirs = []string{filepath.Dir(s.opts.Path)}
	case LayoutYear:
		years, err := s.yearDirs()
		if err != nil {
			return nil, err
		}
		dirs = years
	}

	var out []domain.SourceFile
	for _, dir := range dirs {
		files, err := s.list(dir, s.isQuarantine)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.ModTime.After(horizon) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (s *Scanner) scanSingle() ([]domain.SourceFile, error) {
	info, err := os.Stat(s.opts.Path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("stat %s: %w", s.opts.Path, domain.ErrSourceUnavailable)
	}
	return []domain.SourceFile{{Path: s.opts.Path, ModTime: info.ModTime(), Kind: s.opts.Kind}}, nil
}

func (s *Scanner) newest(dir string) ([]domain.SourceFile, error) {
	files, err := s.list(dir, s.isCandidate)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("scan %s: %w", dir, domain.ErrNoCandidateFile)
	}
	return files[len(files)-1:], nil
}

func (s *Scanner) yearDirs() ([]string, error) {
	entries, err := os.ReadDir(s.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w: %w", s.opts.Path, domain.ErrSourceUnavailable, err)
	}
	type year struct {
		n    int
		path string
	}
	var years []year
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil || n < 0 {
			continue
		}
		years = append(years, year{n: n, path: filepath.Join(s.opts.Path, entry.Name())})
	}
	sort.Slice(years, func(i, j int) bool { return years[i].n < years[j].n })

	out := make([]string, len(years))
	for i, y := range years {
		out[i] = y.path
	}
	return out, nil
}

func (s *Scanner) newestYearDir() (string, error) {
	years, err := s.yearDirs()
	if err != nil {
		return "", err
	}
	if len(years) == 0 {
		return "", fmt.Errorf("scan %s: no year directory: %w", s.opts.Path, domain.ErrNoCandidateFile)
	}
	return years[len(years)-1], nil
}

// list returns the matching regular files of dir sorted by modification time.
// Files that disappear between the listing and the stat are skipped.
func (s *Scanner) list(dir string, match func(name string) bool) ([]domain.SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w: %w", dir, domain.ErrSourceUnavailable, err)
	}

	var out []domain.SourceFile
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, domain.SourceFile{
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
			Kind:    s.opts.Kind,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Path < out[j].Path
		}
		return out[i].ModTime.Before(out[j].ModTime)
	})
	return out, nil
}

func (s *Scanner) isCandidate(name string) bool {
	if !s.matchesPattern(name) {
		return false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, suffix := range s.exclude {
		if strings.HasSuffix(stem, suffix) {
			return false
		}
	}
	return true
}

// isQuarantine matches the quarantine files of the watched sources. A single
// source has exactly one, so files of other sources in its directory are left
// alone.
func (s *Scanner) isQuarantine(name string) bool {
	if s.opts.Layout == LayoutSingle {
		return name == filepath.Base(domain.SiblingNames(s.opts.Path, s.opts.Suffixes).Quarantine)
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !strings.HasSuffix(stem, s.opts.Suffixes.Quarantine) {
		return false
	}
	if s.opts.Suffixes.MarkerExt != "" {
		return strings.EqualFold(ext, s.opts.Suffixes.MarkerExt)
	}
	return s.matchesPattern(name)
}

func (s *Scanner) matchesPattern(name string) bool {
	if s.opts.Layout == LayoutSingle {
		return name == filepath.Base(s.opts.Path)
	}
	if len(s.opts.Patterns) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, pattern := range s.opts.Patterns {
		if ok, _ := filepath.Match(strings.ToLower(pattern), lower); ok {
			return true
		}
	}
	return false
}
