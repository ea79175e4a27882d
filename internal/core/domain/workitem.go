package domain

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// IdentityKey is the normalised dedup key of a record.
type IdentityKey string

const keySeparator = "\x1f"

// KeyOf derives the identity key from raw fields. NUL bytes and surrounding
// whitespace are dropped and each field is NFC normalised.
func KeyOf(raw []string) IdentityKey {
	parts := make([]string, len(raw))
	for i, field := range raw {
		field = strings.ReplaceAll(field, "\x00", "")
		parts[i] = norm.NFC.String(strings.TrimSpace(field))
	}
	return IdentityKey(strings.Join(parts, keySeparator))
}

type WorkItem struct {
	RawFields []string
	Key       IdentityKey
	Code      string
	Line      int
}

func NewWorkItem(raw []string, code string, line int) WorkItem {
	fields := make([]string, len(raw))
	copy(fields, raw)
	return WorkItem{
		RawFields: fields,
		Key:       KeyOf(fields),
		Code:      code,
		Line:      line,
	}
}

// RecordError is a record-level extraction failure.
type RecordError struct {
	Line int
	Raw  []string
	Err  error
}

func (e RecordError) Error() string {
	return e.Err.Error()
}

func (e RecordError) Unwrap() error {
	return e.Err
}

type Extraction struct {
	Items    []WorkItem
	Rejected []RecordError
}

type SourceKind string

const (
	KindCSV        SourceKind = "csv"
	KindCycleXML   SourceKind = "cyclexml"
	KindProgramLog SourceKind = "pro"
	KindLayoutFile SourceKind = "tx"
)

type SourceFile struct {
	Path    string
	ModTime time.Time
	Kind    SourceKind
}

// Suffixes are the stem suffixes of the sibling files of a source.
type Suffixes struct {
	Processed  string `yaml:"processed"`
	Quarantine string `yaml:"quarantine"`
	Done       string `yaml:"done"`
	// MarkerExt overrides the extension of the ledger files; empty keeps the
	// source extension.
	MarkerExt string `yaml:"marker_ext"`
}

// All returns the non-empty suffixes, used to exclude siblings from scans.
func (s Suffixes) All() []string {
	out := make([]string, 0, 3)
	for _, v := range []string{s.Processed, s.Quarantine, s.Done} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

type SiblingPaths struct {
	Processed  string
	Quarantine string
	Done       string
}

// SiblingNames computes the marker, quarantine and terminal names of a source.
// A source path that already carries one of the suffixes is reduced to its
// base stem first.
func SiblingNames(sourcePath string, s Suffixes) SiblingPaths {
	dir := filepath.Dir(sourcePath)
	ext := filepath.Ext(sourcePath)
	stem := BaseStem(strings.TrimSuffix(filepath.Base(sourcePath), ext), s)

	markerExt := ext
	if s.MarkerExt != "" {
		markerExt = s.MarkerExt
	}

	out := SiblingPaths{
		Processed:  filepath.Join(dir, stem+s.Processed+markerExt),
		Quarantine: filepath.Join(dir, stem+s.Quarantine+markerExt),
	}
	if s.Done != "" {
		out.Done = filepath.Join(dir, stem+s.Done+ext)
	}
	return out
}

// BaseStem strips any sibling suffix from a file stem.
func BaseStem(stem string, s Suffixes) string {
	for _, suffix := range s.All() {
		if strings.HasSuffix(stem, suffix) {
			return strings.TrimSuffix(stem, suffix)
		}
	}
	return stem
}

// PathStem returns the file name without extension of a Windows or POSIX path.
func PathStem(p string) string {
	p = strings.TrimSpace(strings.Trim(strings.TrimSpace(p), `"'`))
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.LastIndex(p, "."); i > 0 {
		p = p[:i]
	}
	return p
}

// QuarantinedRecord is a ledger row that failed submission.
type QuarantinedRecord struct {
	RawFields []string
	Key       IdentityKey
	Error     string
}
