package fileio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

type doc struct {
	Name   string         `json:"name"`
	Values map[string]int `json:"values"`
}

func TestDecodeJSONPlainAndGzip(t *testing.T) {
	plain := []byte(`{"name":"table","values":{"0":3,"1":7}}`)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(plain)
	zw.Close()

	tests := []struct {
		name  string
		input []byte
	}{
		{"plain", plain},
		{"gzip", gz.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d doc
			if err := DecodeJSON(bytes.NewReader(tt.input), &d); err != nil {
				t.Fatalf("DecodeJSON failed: %v", err)
			}
			if d.Name != "table" || d.Values["0"] != 3 || d.Values["1"] != 7 {
				t.Errorf("decoded %+v", d)
			}
		})
	}
}

func TestDecodeJSONInvalid(t *testing.T) {
	var d doc
	if err := DecodeJSON(bytes.NewReader([]byte("{not json")), &d); err == nil {
		t.Error("Expected error for malformed json")
	}
	if err := DecodeJSON(bytes.NewReader(nil), &d); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestSaveLoadJSON(t *testing.T) {
	dir := t.TempDir()
	in := doc{Name: "m", Values: map[string]int{"5": 9}}

	for _, compress := range []bool{false, true} {
		path := filepath.Join(dir, "doc.json")
		if err := SaveJSON(path, in, compress); err != nil {
			t.Fatalf("SaveJSON(compress=%t) failed: %v", compress, err)
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		isGzip := len(raw) > 1 && raw[0] == 0x1f && raw[1] == 0x8b
		if isGzip != compress {
			t.Errorf("compress=%t but gzip magic present=%t", compress, isGzip)
		}

		var out doc
		if err := LoadJSON(path, &out); err != nil {
			t.Fatalf("LoadJSON failed: %v", err)
		}
		if out.Name != in.Name || out.Values["5"] != 9 {
			t.Errorf("round trip got %+v", out)
		}
	}
}

func TestLoadJSONMissingFile(t *testing.T) {
	var d doc
	if err := LoadJSON("/nonexistent/path.json", &d); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestWriteAtomicKeepsOldFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	failure := errors.New("boom")
	err := WriteAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "old" {
		t.Errorf("file content = %q, want %q", got, "old")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected temp file cleanup, dir has %d entries", len(entries))
	}
}

func TestWriteAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	err := WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	})
	if err != nil {
		t.Fatalf("WriteAtomic failed: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "new" {
		t.Errorf("file content = %q, want %q", got, "new")
	}
}
