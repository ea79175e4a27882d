// Package programlog extracts order codes from SCM Pratika .pro logs.
package programlog

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/textdecode"
)

var orderCodePattern = regexp.MustCompile(`ORD\d+#\d+`)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(content []byte) (domain.Extraction, error) {
	var out domain.Extraction

	scanner := bufio.NewScanner(strings.NewReader(textdecode.Decode(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !strings.Contains(strings.ToUpper(text), ".PGM") {
			continue
		}
		code := orderCodePattern.FindString(text)
		if code == "" {
			out.Rejected = append(out.Rejected, domain.RecordError{
				Line: line,
				Raw:  []string{text},
				Err:  domain.WrapError(domain.ErrMalformedRecord, "extract order code", fmt.Errorf("no order code in %q", text)),
			})
			continue
		}
		item := domain.NewWorkItem([]string{code}, code, line)
		out.Items = append(out.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan program log: %w", err)
	}
	return out, nil
}

func (e *Extractor) Rebuild(raw []string) (domain.WorkItem, error) {
	if len(raw) == 0 {
		return domain.WorkItem{}, domain.WrapError(domain.ErrMalformedRecord, "rebuild order", errors.New("empty record"))
	}
	code := orderCodePattern.FindString(raw[0])
	if code == "" {
		return domain.WorkItem{}, domain.WrapError(domain.ErrMalformedRecord, "rebuild order", fmt.Errorf("no order code in %q", raw[0]))
	}
	return domain.NewWorkItem([]string{code}, code, 0), nil
}
