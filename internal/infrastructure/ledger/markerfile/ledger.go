package markerfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/textdecode"
)

const errorPrefix = "ERRO: "

// Format describes how existing marker files are read.
type Format struct {
	// SingleRecord marks sources that hold exactly one item. Their quarantine
	// file may be the whole failed source with the annotation appended, so
	// only its first line is the record and the rest is kept as body.
	SingleRecord bool
	// CodeRows accepts processed rows of the form <source>,<code>,<code>...
	// and indexes every code after the first field as a processed item.
	CodeRows bool
}

// Factory opens the marker-file ledgers of source files.
type Factory struct {
	Suffixes domain.Suffixes
	Format   Format
}

func (f Factory) Open(source domain.SourceFile) (ports.Ledger, error) {
	l := Open(domain.SiblingNames(source.Path, f.Suffixes))
	l.format = f.Format
	return l, nil
}

// Ledger keeps the processed and quarantined keys of one source. It is owned
// by a single reconciliation loop and is not safe for concurrent use.
type Ledger struct {
	processedPath  string
	quarantinePath string
	format         Format

	processed   map[domain.IdentityKey]struct{}
	quarantined map[domain.IdentityKey]int
	records     []domain.QuarantinedRecord
	body        [][]string
	dirty       bool
}

func Open(paths domain.SiblingPaths) *Ledger {
	return &Ledger{
		processedPath:  paths.Processed,
		quarantinePath: paths.Quarantine,
		processed:      map[domain.IdentityKey]struct{}{},
		quarantined:    map[domain.IdentityKey]int{},
	}
}

// Load replays both marker files into memory. Missing files are empty ledgers.
func (l *Ledger) Load() error {
	l.processed = map[domain.IdentityKey]struct{}{}
	l.quarantined = map[domain.IdentityKey]int{}
	l.records = nil
	l.body = nil
	l.dirty = false

	rows, err := readRows(l.processedPath)
	if err != nil {
		return err
	}
	for _, row := range rows {
		l.processed[domain.KeyOf(row)] = struct{}{}
		if l.format.CodeRows && len(row) > 1 {
			for _, code := range row[1:] {
				if strings.TrimSpace(code) != "" {
					l.processed[domain.KeyOf([]string{code})] = struct{}{}
				}
			}
		}
	}

	rows, err = readRows(l.quarantinePath)
	if err != nil {
		return err
	}
	if l.format.SingleRecord {
		l.loadSingle(rows)
		return nil
	}
	last := -1
	for _, row := range rows {
		if msg, ok := annotation(row); ok {
			if last >= 0 {
				l.records[last].Error = msg
			}
			last = -1
			continue
		}
		key := domain.KeyOf(row)
		if _, done := l.processed[key]; done {
			l.dirty = true
			last = -1
			continue
		}
		if i, seen := l.quarantined[key]; seen {
			l.dirty = true
			last = i
			continue
		}
		last = len(l.records)
		l.quarantined[key] = last
		l.records = append(l.records, domain.QuarantinedRecord{RawFields: row, Key: key})
	}
	return nil
}

func (l *Ledger) loadSingle(rows [][]string) {
	var record *domain.QuarantinedRecord
	for _, row := range rows {
		if msg, ok := annotation(row); ok {
			if record != nil {
				record.Error = msg
			}
			continue
		}
		if record != nil {
			l.body = append(l.body, row)
			continue
		}
		line := []string{strings.Join(row, ",")}
		record = &domain.QuarantinedRecord{RawFields: line, Key: domain.KeyOf(line)}
	}
	if record == nil {
		return
	}
	if _, done := l.processed[record.Key]; done {
		l.dirty = true
		return
	}
	l.quarantined[record.Key] = 0
	l.records = append(l.records, *record)
}

func (l *Ledger) IsNew(key domain.IdentityKey) bool {
	if l.IsProcessed(key) {
		return false
	}
	_, ok := l.quarantined[key]
	return !ok
}

func (l *Ledger) IsProcessed(key domain.IdentityKey) bool {
	_, ok := l.processed[key]
	return ok
}

func (l *Ledger) MarkProcessed(item domain.WorkItem) error {
	if l.IsProcessed(item.Key) {
		return nil
	}
	if err := appendRows(l.processedPath, [][]string{item.RawFields}); err != nil {
		return err
	}
	l.processed[item.Key] = struct{}{}
	if _, ok := l.quarantined[item.Key]; ok {
		l.forget(item.Key)
		l.dirty = true
	}
	return nil
}

func (l *Ledger) MarkQuarantined(item domain.WorkItem, cause error) error {
	if l.IsProcessed(item.Key) {
		return nil
	}
	msg := errorMessage(cause)
	if i, ok := l.quarantined[item.Key]; ok {
		if l.records[i].Error != msg {
			l.records[i].Error = msg
			l.dirty = true
		}
		return nil
	}
	if err := appendRows(l.quarantinePath, [][]string{item.RawFields, {errorPrefix + msg}}); err != nil {
		return err
	}
	l.quarantined[item.Key] = len(l.records)
	l.records = append(l.records, domain.QuarantinedRecord{RawFields: item.RawFields, Key: item.Key, Error: msg})
	return nil
}

// QuarantinedRecords returns the still-failing records in file order.
func (l *Ledger) QuarantinedRecords() []domain.QuarantinedRecord {
	out := make([]domain.QuarantinedRecord, 0, len(l.records))
	for _, rec := range l.records {
		fields := make([]string, len(rec.RawFields))
		copy(fields, rec.RawFields)
		rec.RawFields = fields
		out = append(out, rec)
	}
	return out
}

// Compact rewrites the quarantine file with the records still failing and
// removes it once none is left. The modification time is kept so that the
// retention window keeps counting from the original failure.
func (l *Ledger) Compact() error {
	if !l.dirty {
		return nil
	}
	if len(l.records) == 0 {
		if err := os.Remove(l.quarantinePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove quarantine %s: %w", l.quarantinePath, err)
		}
		l.dirty = false
		return nil
	}

	rows := make([][]string, 0, 2*len(l.records)+len(l.body))
	for _, rec := range l.records {
		rows = append(rows, rec.RawFields)
		if l.format.SingleRecord {
			rows = append(rows, l.body...)
		}
		rows = append(rows, []string{errorPrefix + rec.Error})
	}
	if err := rewrite(l.quarantinePath, rows); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

func (l *Ledger) forget(key domain.IdentityKey) {
	i := l.quarantined[key]
	l.records = append(l.records[:i], l.records[i+1:]...)
	delete(l.quarantined, key)
	for j := i; j < len(l.records); j++ {
		l.quarantined[l.records[j].Key] = j
	}
}

// annotation recognises an error row. Rows written by older tools are not
// quoted, so a message with commas arrives split into several fields.
func annotation(row []string) (string, bool) {
	if len(row) == 0 || !strings.HasPrefix(row[0], errorPrefix) {
		return "", false
	}
	return strings.TrimPrefix(strings.Join(row, ","), errorPrefix), true
}

func errorMessage(err error) string {
	if err == nil {
		return "erro desconhecido"
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}

// readRows parses the complete lines of a marker file. Bytes after the last
// newline belong to an interrupted write and malformed rows are skipped.
func readRows(path string) ([][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	end := bytes.LastIndexByte(raw, '\n')
	if end < 0 {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(textdecode.Decode(raw[:end+1])))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if err != nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

func encodeRows(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// appendRows durably appends rows to path. A trailing fragment left by an
// interrupted write is cut off first.
func appendRows(path string, rows [][]string) error {
	payload, err := encodeRows(rows)
	if err != nil {
		return fmt.Errorf("encode ledger rows: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	end, err := completeLength(f)
	if err != nil {
		return fmt.Errorf("inspect ledger %s: %w", path, err)
	}
	if err := f.Truncate(end); err != nil {
		return fmt.Errorf("truncate ledger %s: %w", path, err)
	}
	if _, err := f.WriteAt(payload, end); err != nil {
		return fmt.Errorf("append ledger %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ledger %s: %w", path, err)
	}
	return f.Close()
}

// completeLength returns the length of f up to and including its last newline.
func completeLength(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, err
	}
	if last[0] == '\n' {
		return size, nil
	}

	raw := make([]byte, size)
	if _, err := f.ReadAt(raw, 0); err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	return int64(bytes.LastIndexByte(raw, '\n') + 1), nil
}

func rewrite(path string, rows [][]string) error {
	payload, err := encodeRows(rows)
	if err != nil {
		return fmt.Errorf("encode ledger rows: %w", err)
	}

	info, statErr := os.Stat(path)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace ledger %s: %w", path, err)
	}
	if statErr == nil {
		if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
			return fmt.Errorf("restore ledger mtime %s: %w", path, err)
		}
	}
	return nil
}
