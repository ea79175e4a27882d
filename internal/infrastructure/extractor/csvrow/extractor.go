package csvrow

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/textdecode"
)

type Options struct {
	Delimiter  rune
	HasHeader  bool
	CodeColumn int
}

type Extractor struct {
	opts Options
}

func NewExtractor(opts Options) *Extractor {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.CodeColumn < 0 {
		opts.CodeColumn = 0
	}
	return &Extractor{opts: opts}
}

func (e *Extractor) Extract(content []byte) (domain.Extraction, error) {
	reader := csv.NewReader(strings.NewReader(textdecode.Decode(content)))
	reader.Comma = e.opts.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var out domain.Extraction
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				out.Rejected = append(out.Rejected, domain.RecordError{
					Line: parseErr.StartLine,
					Err:  domain.WrapError(domain.ErrMalformedRecord, "parse csv row", err),
				})
				first = false
				continue
			}
			return out, fmt.Errorf("read csv: %w", err)
		}

		line, _ := reader.FieldPos(0)
		if first && e.opts.HasHeader {
			first = false
			continue
		}
		first = false

		item, err := e.build(record, line)
		if err != nil {
			out.Rejected = append(out.Rejected, domain.RecordError{Line: line, Raw: record, Err: err})
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (e *Extractor) Rebuild(raw []string) (domain.WorkItem, error) {
	return e.build(raw, 0)
}

func (e *Extractor) build(record []string, line int) (domain.WorkItem, error) {
	if len(record) <= e.opts.CodeColumn {
		return domain.WorkItem{}, domain.WrapError(
			domain.ErrMalformedRecord,
			"extract code",
			fmt.Errorf("row has %d columns, code column is %d", len(record), e.opts.CodeColumn),
		)
	}
	code := domain.PathStem(record[e.opts.CodeColumn])
	if code == "" {
		return domain.WorkItem{}, domain.WrapError(
			domain.ErrMalformedRecord,
			"extract code",
			fmt.Errorf("empty code in %q", record[e.opts.CodeColumn]),
		)
	}
	return domain.NewWorkItem(record, code, line), nil
}
