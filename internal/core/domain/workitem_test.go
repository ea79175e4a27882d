package domain

import (
	"path/filepath"
	"testing"
)

func TestKeyOfIsStableAcrossNormalisation(t *testing.T) {
	composed := KeyOf([]string{"1", "PEÇA"})
	decomposed := KeyOf([]string{" 1\x00", "PEC\u0327A "})
	if composed != decomposed {
		t.Fatalf("expected equal keys, got %q and %q", composed, decomposed)
	}
	if KeyOf([]string{"a", "b"}) == KeyOf([]string{"ab"}) {
		t.Fatalf("field boundaries must be part of the key")
	}
}

func TestPathStem(t *testing.T) {
	cases := map[string]string{
		`C:\Programas\ORD123#4.nc`: "ORD123#4",
		"/mnt/cnc/ORD9.pgm":        "ORD9",
		`"D:\x\a.b.c"`:             "a.b",
		"":                         "",
		`C:\dir\`:                  "",
	}
	for in, want := range cases {
		if got := PathStem(in); got != want {
			t.Fatalf("PathStem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSiblingNames(t *testing.T) {
	s := Suffixes{Processed: "_PROCESSADO_TEMPOX", Quarantine: "_COM_ERRO", Done: "_APONTADO"}
	dir := filepath.Join("data", "scm")

	got := SiblingNames(filepath.Join(dir, "L01_COM_ERRO.tx"), s)
	if got.Processed != filepath.Join(dir, "L01_PROCESSADO_TEMPOX.tx") {
		t.Fatalf("unexpected processed path %s", got.Processed)
	}
	if got.Quarantine != filepath.Join(dir, "L01_COM_ERRO.tx") {
		t.Fatalf("unexpected quarantine path %s", got.Quarantine)
	}
	if got.Done != filepath.Join(dir, "L01_APONTADO.tx") {
		t.Fatalf("unexpected done path %s", got.Done)
	}

	s.MarkerExt = ".csv"
	got = SiblingNames(filepath.Join(dir, "cycles.xml"), s)
	if got.Processed != filepath.Join(dir, "cycles_PROCESSADO_TEMPOX.csv") {
		t.Fatalf("unexpected processed path %s", got.Processed)
	}
}

func TestClassify(t *testing.T) {
	finalized := &RemoteError{Operation: "apontar", StatusCode: 400, Kind: RemoteAlreadyFinalized}
	rejected := &RemoteError{Operation: "apontar", StatusCode: 422}

	if Classify(WrapError(ErrRemoteRejected, "point", finalized)) != FailureAlreadyFinalized {
		t.Fatalf("expected already finalized")
	}
	if Classify(rejected) != FailureRejected {
		t.Fatalf("expected rejected")
	}
	if Classify(WrapError(ErrTransport, "post", ErrInvalidInput)) != FailureTransport {
		t.Fatalf("expected transport")
	}
	if Classify(WrapError(ErrAuthentication, "post", rejected)) != FailureAuthentication {
		t.Fatalf("authentication must win over the wrapped rejection")
	}
}
