// Package fileio loads and saves the JSON documents exchanged with the
// content tools, transparently handling gzip, and writes output files
// atomically.
package fileio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// DecodeJSON decodes one JSON document from r into v. Input starting with
// the gzip magic is decompressed first.
func DecodeJSON(r io.Reader, v any) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return fmt.Errorf("peek: %w", err)
	}

	var in io.Reader = br
	if len(head) == 2 && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("can't uncompress gzip data: %w", err)
		}
		defer zr.Close()
		in = zr
	}

	if err := json.NewDecoder(in).Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// LoadJSON reads the plain or gzip-compressed JSON file at path into v.
func LoadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open json: %w", err)
	}
	defer f.Close()

	if err := DecodeJSON(f, v); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes v to path, gzip-compressed when compress is set.
func SaveJSON(path string, v any, compress bool) error {
	return WriteAtomic(path, func(w io.Writer) error {
		if !compress {
			return json.NewEncoder(w).Encode(v)
		}
		zw := gzip.NewWriter(w)
		if err := json.NewEncoder(zw).Encode(v); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	})
}
