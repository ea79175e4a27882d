package csvrow

import (
	"errors"
	"testing"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

func TestExtractSkipsHeaderAndTakesPathStem(t *testing.T) {
	content := []byte("data;programa;qtd\n" +
		"2024-10-01;C:\\CNC\\ORD100#1.nc;1\n" +
		"2024-10-01;C:\\CNC\\ORD101#2.nc;1\n")

	ext := NewExtractor(Options{Delimiter: ';', HasHeader: true, CodeColumn: 1})
	out, err := ext.Extract(content)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(out.Items))
	}
	if out.Items[0].Code != "ORD100#1" || out.Items[1].Code != "ORD101#2" {
		t.Fatalf("unexpected codes %q %q", out.Items[0].Code, out.Items[1].Code)
	}
	if out.Items[0].Line != 2 {
		t.Fatalf("expected line 2, got %d", out.Items[0].Line)
	}
	if out.Items[0].RawFields[1] != "C:\\CNC\\ORD100#1.nc" {
		t.Fatalf("raw fields must be preserved, got %v", out.Items[0].RawFields)
	}
}

func TestExtractRejectsEmptyCodeWithoutAborting(t *testing.T) {
	content := []byte("h1,h2\n" +
		"a,\n" +
		"onlyone\n" +
		"b,/mnt/ORD7#1.pgm\n")

	ext := NewExtractor(Options{HasHeader: true, CodeColumn: 1})
	out, err := ext.Extract(content)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Code != "ORD7#1" {
		t.Fatalf("expected the valid row only, got %+v", out.Items)
	}
	if len(out.Rejected) != 2 {
		t.Fatalf("expected 2 rejected rows, got %d", len(out.Rejected))
	}
	for _, rej := range out.Rejected {
		if !errors.Is(rej, domain.ErrMalformedRecord) {
			t.Fatalf("expected malformed record, got %v", rej.Err)
		}
	}
}

func TestExtractToleratesNULBytes(t *testing.T) {
	content := []byte("h1,h2\n\x00x,C:\\A\\ORD1#1.nc\x00\n")

	out, err := NewExtractor(Options{HasHeader: true, CodeColumn: 1}).Extract(content)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Code != "ORD1#1" {
		t.Fatalf("unexpected items %+v", out.Items)
	}
}

func TestRebuildMatchesExtractedKey(t *testing.T) {
	ext := NewExtractor(Options{HasHeader: false, CodeColumn: 1})
	out, err := ext.Extract([]byte("x,C:\\A\\ORD1#1.nc\n"))
	if err != nil || len(out.Items) != 1 {
		t.Fatalf("Extract() = %+v, %v", out, err)
	}
	rebuilt, err := ext.Rebuild(out.Items[0].RawFields)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if rebuilt.Key != out.Items[0].Key || rebuilt.Code != out.Items[0].Code {
		t.Fatalf("rebuilt item differs: %+v vs %+v", rebuilt, out.Items[0])
	}
}
