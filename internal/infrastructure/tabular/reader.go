package tabular

import (
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/textdecode"
)

// ReadFile loads a header-mapped table from a CSV file or the first sheet of
// an .xlsx workbook. Header names are trimmed and lower-cased. A zero sep
// picks the separator from the header line.
func ReadFile(path string, sep rune) ([]map[string]string, error) {
	path = strings.Trim(strings.TrimSpace(path), `"'`)
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(path)
	default:
		records, err = readCSV(path, sep)
	}
	if err != nil {
		return nil, err
	}
	return mapRows(records), nil
}

func readCSV(path string, sep rune) ([][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read table", err)
	}

	text := textdecode.Decode(raw)
	if sep == 0 {
		sep = sniffSeparator(text)
	}
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	// Trimming would swallow the empty fields of a tab separated file.
	reader.TrimLeadingSpace = sep != '\t'

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse table "+filepath.Base(path), err)
		}
		records = append(records, record)
	}
}

// sniffSeparator returns the most frequent of ; , and tab in the first line.
func sniffSeparator(text string) rune {
	header, _, _ := strings.Cut(text, "\n")
	best, count := ',', 0
	for _, sep := range []rune{',', ';', '\t'} {
		if n := strings.Count(header, string(sep)); n > count {
			best, count = sep, n
		}
	}
	return best
}

func readWorkbook(path string) ([][]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", fmt.Errorf("%s has no sheets", filepath.Base(path)))
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read sheet "+sheets[0], err)
	}
	return rows, nil
}

func mapRows(records [][]string) []map[string]string {
	if len(records) == 0 {
		return nil
	}
	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	out := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if isEmpty(record) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			} else {
				row[name] = ""
			}
		}
		out = append(out, row)
	}
	return out
}

func isEmpty(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// FigureDir serves <dir>/<codigo_layout>.png as base64.
type FigureDir string

func (d FigureDir) Figure(codigoLayout string) (*string, error) {
	dir := strings.Trim(strings.TrimSpace(string(d)), `"'`)
	if dir == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(filepath.Join(dir, codigoLayout+".png"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read figure: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return &encoded, nil
}
