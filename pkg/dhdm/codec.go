package dhdm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/taigrr/dhdmgen/pkg/fileio"
)

const (
	magic1 uint32 = 0xD0D0D0D0
	magic2 uint32 = 0x3F800000

	// MaxLevel is the finest level a location code can address.
	MaxLevel = 7

	fileHeaderSize  = 16
	levelHeaderSize = 16
	groupHeaderSize = 8
)

var (
	// ErrBadMagic reports input that does not start with the dhdm magic.
	ErrBadMagic = errors.New("not a dhdm file")

	// ErrCorrupt reports a dhdm file whose counts or sizes disagree with its
	// contents.
	ErrCorrupt = errors.New("corrupt dhdm file")
)

// Location is the packed (subface, corner) code of a displacement record.
// Levels below 4 use bytes 0 and 1 only. From level 4 on, byte 0 is zero,
// bytes 1 and 2 hold the 16-bit code little-endian and byte 3 holds the
// level tag.
type Location [4]byte

func levelTag(level int) byte {
	return byte((level + 1) * 16)
}

// PackLocation encodes the subface and corner of a record at level.
func PackLocation(level, subface, corner int) (Location, error) {
	var loc Location
	if level < 1 || level > MaxLevel {
		return loc, fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidLevel, level, MaxLevel)
	}
	if subface < 0 || subface >= 1<<(2*level) {
		return loc, fmt.Errorf("subface %d out of range at level %d", subface, level)
	}
	if corner < 0 || corner > 3 {
		return loc, fmt.Errorf("corner %d out of range", corner)
	}

	if level < 4 {
		loc[0] = byte(subface<<(8-2*level) | corner<<(6-2*level))
		loc[1] = levelTag(level)
		return loc, nil
	}
	code := uint16(subface<<(16-2*level) | corner<<(14-2*level))
	loc[1] = byte(code)
	loc[2] = byte(code >> 8)
	loc[3] = levelTag(level)
	return loc, nil
}

// Unpack decodes a location written at level.
func (l Location) Unpack(level int) (subface, corner int, err error) {
	if level < 1 || level > MaxLevel {
		return 0, 0, fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidLevel, level, MaxLevel)
	}

	var code, tag, shift int
	if level < 4 {
		code, tag, shift = int(l[0]), int(l[1]), 8-2*level
	} else {
		code, tag, shift = int(l[1])|int(l[2])<<8, int(l[3]), 16-2*level
	}
	if tag != int(levelTag(level)) {
		return 0, 0, fmt.Errorf("%w: location tag %#x, want %#x", ErrCorrupt, tag, levelTag(level))
	}
	return code >> shift, (code >> (shift - 2)) & 3, nil
}

func recordSize(level int) int {
	if level < 4 {
		return 14
	}
	return 16
}

// VertexDisplacement is one displacement in the frame of a face corner.
type VertexDisplacement struct {
	X, Y, Z float32
	Loc     Location
}

// FaceDisplacements groups the records of one base face.
type FaceDisplacements struct {
	FaceIdx  uint32
	Vertices []VertexDisplacement
}

// Level holds the records of one subdivision level.
type Level struct {
	NumFaces uint32 // base face count
	Level    uint32
	Faces    []FaceDisplacements
}

// NumDisplacements returns the record count of the level.
func (l *Level) NumDisplacements() int {
	n := 0
	for _, g := range l.Faces {
		n += len(g.Vertices)
	}
	return n
}

// DataSize returns the serialized size of the level's groups.
func (l *Level) DataSize() int {
	return groupHeaderSize*len(l.Faces) + recordSize(int(l.Level))*l.NumDisplacements()
}

// File is a decoded dhdm file. Levels are in increasing order.
type File struct {
	Levels []Level
}

// NumDisplacements returns the record count over all levels.
func (f *File) NumDisplacements() int {
	n := 0
	for i := range f.Levels {
		n += f.Levels[i].NumDisplacements()
	}
	return n
}

// Size returns the serialized size of f in bytes.
func (f *File) Size() int64 {
	n := int64(fileHeaderSize)
	for i := range f.Levels {
		n += levelHeaderSize + int64(f.Levels[i].DataSize())
	}
	return n
}

type encoder struct {
	w   io.Writer
	n   int64
	buf [4]byte
	err error
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(p)
	e.n += int64(n)
	e.err = err
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:], v)
	e.write(e.buf[:])
}

func (e *encoder) f32(v float32) {
	e.u32(math.Float32bits(v))
}

// WriteTo serializes f in little-endian byte order.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	prev := 0
	for i := range f.Levels {
		lvl := int(f.Levels[i].Level)
		if lvl < 1 || lvl > MaxLevel {
			return 0, fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidLevel, lvl, MaxLevel)
		}
		if lvl <= prev {
			return 0, fmt.Errorf("%w: level %d follows level %d", ErrInvalidLevel, lvl, prev)
		}
		prev = lvl
	}

	e := &encoder{w: w}
	e.u32(magic1)
	e.u32(uint32(len(f.Levels)))
	e.u32(magic2)
	e.u32(uint32(len(f.Levels)))

	for i := range f.Levels {
		l := &f.Levels[i]
		e.u32(l.NumFaces)
		e.u32(l.Level)
		e.u32(uint32(l.NumDisplacements()))
		e.u32(uint32(l.DataSize()))

		wide := l.Level >= 4
		for _, g := range l.Faces {
			e.u32(g.FaceIdx)
			e.u32(uint32(len(g.Vertices)))
			for _, v := range g.Vertices {
				e.f32(v.X)
				if wide {
					e.write(v.Loc[:])
				} else {
					e.write(v.Loc[:2])
				}
				e.f32(v.Y)
				e.f32(v.Z)
			}
		}
	}
	return e.n, e.err
}

// Decode reads a dhdm file from r, verifying the magics, the duplicated
// level count, and every level's record count and data size.
func Decode(r io.Reader) (*File, error) {
	var hdr [fileHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadMagic, err)
	}
	le := binary.LittleEndian
	if le.Uint32(hdr[0:]) != magic1 || le.Uint32(hdr[8:]) != magic2 {
		return nil, ErrBadMagic
	}
	numLevels := le.Uint32(hdr[4:])
	if again := le.Uint32(hdr[12:]); again != numLevels {
		return nil, fmt.Errorf("%w: level count %d, repeated as %d", ErrCorrupt, numLevels, again)
	}
	if numLevels > MaxLevel {
		return nil, fmt.Errorf("%w: %d levels", ErrCorrupt, numLevels)
	}

	f := &File{Levels: make([]Level, numLevels)}
	prev := uint32(0)
	var payload bytes.Buffer
	for i := range f.Levels {
		var lh [levelHeaderSize]byte
		if _, err := io.ReadFull(r, lh[:]); err != nil {
			return nil, fmt.Errorf("%w: read level %d header: %v", ErrCorrupt, i, err)
		}
		l := &f.Levels[i]
		l.NumFaces = le.Uint32(lh[0:])
		l.Level = le.Uint32(lh[4:])
		numDisp := le.Uint32(lh[8:])
		dataSize := int64(le.Uint32(lh[12:]))
		if l.Level < 1 || l.Level > MaxLevel || l.Level <= prev {
			return nil, fmt.Errorf("%w: level header %d has level %d", ErrCorrupt, i, l.Level)
		}
		prev = l.Level

		payload.Reset()
		if n, err := io.CopyN(&payload, r, dataSize); err != nil {
			return nil, fmt.Errorf("%w: level %d: %d of %d data bytes: %v", ErrCorrupt, l.Level, n, dataSize, err)
		}
		if err := decodeGroups(l, payload.Bytes()); err != nil {
			return nil, err
		}
		if got := l.NumDisplacements(); got != int(numDisp) {
			return nil, fmt.Errorf("%w: level %d has %d records, header says %d", ErrCorrupt, l.Level, got, numDisp)
		}
	}

	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: trailing data after level %d", ErrCorrupt, prev)
	}
	return f, nil
}

func decodeGroups(l *Level, data []byte) error {
	le := binary.LittleEndian
	size := recordSize(int(l.Level))
	wide := l.Level >= 4

	for len(data) > 0 {
		if len(data) < groupHeaderSize {
			return fmt.Errorf("%w: level %d: truncated face group", ErrCorrupt, l.Level)
		}
		g := FaceDisplacements{FaceIdx: le.Uint32(data[0:])}
		count := int(le.Uint32(data[4:]))
		data = data[groupHeaderSize:]
		if count > len(data)/size {
			return fmt.Errorf("%w: level %d: face %d claims %d records in %d bytes",
				ErrCorrupt, l.Level, g.FaceIdx, count, len(data))
		}

		g.Vertices = make([]VertexDisplacement, count)
		for k := range g.Vertices {
			rec := data[:size]
			v := &g.Vertices[k]
			v.X = math.Float32frombits(le.Uint32(rec[0:]))
			if wide {
				copy(v.Loc[:], rec[4:8])
				v.Y = math.Float32frombits(le.Uint32(rec[8:]))
				v.Z = math.Float32frombits(le.Uint32(rec[12:]))
			} else {
				copy(v.Loc[:2], rec[4:6])
				v.Y = math.Float32frombits(le.Uint32(rec[6:]))
				v.Z = math.Float32frombits(le.Uint32(rec[10:]))
			}
			data = data[size:]
		}
		l.Faces = append(l.Faces, g)
	}
	return nil
}

// WriteFile writes f to path. The file only appears once it is complete.
func WriteFile(path string, f *File) error {
	return fileio.WriteAtomic(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}

// ReadFile decodes the dhdm file at path.
func ReadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dhdm: %w", err)
	}
	defer fh.Close()

	f, err := Decode(bufio.NewReader(fh))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

// ReadLevelCount returns the level count stored in the header of the dhdm
// file at path without decoding the records.
func ReadLevelCount(path string) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open dhdm: %w", err)
	}
	defer fh.Close()

	var hdr [8]byte
	if _, err := io.ReadFull(fh, hdr[:]); err != nil {
		return 0, fmt.Errorf("read %s: %w: %v", path, ErrBadMagic, err)
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != magic1 {
		return 0, fmt.Errorf("read %s: %w", path, ErrBadMagic)
	}
	return int(binary.LittleEndian.Uint32(hdr[4:])), nil
}
