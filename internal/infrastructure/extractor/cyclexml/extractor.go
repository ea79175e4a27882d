// Package cyclexml extracts completed cuts from Nanxing cycle logs.
package cyclexml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/extractor/textdecode"
)

const (
	fieldPlateID    = "PlateID"
	fieldPanelState = "PanelState"

	// panelStateCut is the only state that reports a finished plate.
	panelStateCut = "4"
)

type field struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

type cycle struct {
	Fields []field `xml:"Field"`
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract walks every Cycle element. A document truncated by a concurrent
// writer keeps the cycles decoded before the truncation.
func (e *Extractor) Extract(content []byte) (domain.Extraction, error) {
	decoder := xml.NewDecoder(strings.NewReader(textdecode.Decode(content)))
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var out domain.Extraction
	cycles := 0
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, e.syntaxFailure(&out, cycles, decoder, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Cycle" {
			continue
		}

		line, _ := decoder.InputPos()
		var c cycle
		if err := decoder.DecodeElement(&c, &start); err != nil {
			return out, e.syntaxFailure(&out, cycles, decoder, err)
		}
		cycles++

		plateID, state := c.values()
		if state != panelStateCut || plateID == "" {
			continue
		}
		item, err := e.Rebuild([]string{plateID})
		if err != nil {
			out.Rejected = append(out.Rejected, domain.RecordError{Line: line, Raw: []string{plateID}, Err: err})
			continue
		}
		item.Line = line
		out.Items = append(out.Items, item)
	}
}

func (e *Extractor) syntaxFailure(out *domain.Extraction, cycles int, decoder *xml.Decoder, err error) error {
	if cycles == 0 {
		return domain.WrapError(domain.ErrMalformedRecord, "parse cycle xml", err)
	}
	line, _ := decoder.InputPos()
	out.Rejected = append(out.Rejected, domain.RecordError{
		Line: line,
		Err:  domain.WrapError(domain.ErrMalformedRecord, "parse cycle xml tail", err),
	})
	return nil
}

func (e *Extractor) Rebuild(raw []string) (domain.WorkItem, error) {
	if len(raw) == 0 {
		return domain.WorkItem{}, domain.WrapError(domain.ErrMalformedRecord, "rebuild cycle", errors.New("empty record"))
	}
	code := trimSuffixFold(strings.TrimSpace(raw[0]), ".nc")
	if code == "" {
		return domain.WorkItem{}, domain.WrapError(domain.ErrMalformedRecord, "rebuild cycle", fmt.Errorf("empty plate id %q", raw[0]))
	}
	return domain.NewWorkItem(raw[:1], code, 0), nil
}

func (c cycle) values() (plateID, state string) {
	for _, f := range c.Fields {
		switch f.Name {
		case fieldPlateID:
			plateID = strings.TrimSpace(f.Value)
		case fieldPanelState:
			state = strings.TrimSpace(f.Value)
		}
	}
	return plateID, state
}

func trimSuffixFold(s, suffix string) string {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)]
	}
	return s
}
