// Package firstline reads SCM .tx layout files, whose first line is the
// layout code to point.
package firstline

import (
	"errors"
	"strings"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/textdecode"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract yields no items for an empty file, which may still be being written.
func (e *Extractor) Extract(content []byte) (domain.Extraction, error) {
	var out domain.Extraction
	for i, line := range strings.Split(textdecode.Decode(content), "\n") {
		code := strings.TrimSpace(line)
		if code == "" {
			continue
		}
		out.Items = append(out.Items, domain.NewWorkItem([]string{code}, code, i+1))
		break
	}
	return out, nil
}

func (e *Extractor) Rebuild(raw []string) (domain.WorkItem, error) {
	code := strings.TrimSpace(strings.Join(raw, ","))
	if code == "" {
		return domain.WorkItem{}, domain.WrapError(domain.ErrMalformedRecord, "rebuild layout", errors.New("empty layout code"))
	}
	return domain.NewWorkItem([]string{code}, code, 0), nil
}
