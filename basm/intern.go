package basm

import (
	"fmt"
	"os"
)

// MaxDataSize bounds how much a single translation unit may intern
// into the program's data segment via string/byte_array/file
// literals.
const MaxDataSize = 64 << 20

var ErrDataTooLarge = fmt.Errorf("interned data exceeds memory capacity")

// Interner owns the growable data segment that string, byte_array and
// file literals are written into at compile time (spec §4.4 built-ins).
// Addresses handed back are offsets into Data; translator.go assembles
// images with MemoryBase 0, so an offset is also the runtime address.
type Interner struct {
	Data []byte

	// stringLens records the byte length of each interned string
	// literal by address, so a later len(ident) on a %const holding
	// that address can answer without re-reading the literal.
	// InternFile and InternByteArray record no length here.
	stringLens map[uint64]int
}

func NewInterner() *Interner {
	return &Interner{stringLens: make(map[uint64]int)}
}

func (in *Interner) append(b []byte) (uint64, error) {
	if len(in.Data)+len(b) > MaxDataSize {
		return 0, ErrDataTooLarge
	}
	addr := uint64(len(in.Data))
	in.Data = append(in.Data, b...)
	return addr, nil
}

// InternString writes s followed by a NUL terminator, C-string style;
// the length recorded for len() excludes the NUL.
func (in *Interner) InternString(s string) (uint64, error) {
	addr, err := in.append(append([]byte(s), 0))
	if err != nil {
		return 0, err
	}
	in.stringLens[addr] = len(s)
	return addr, nil
}

// InternByteArray reserves size bytes all initialized to value.
func (in *Interner) InternByteArray(size uint64, value byte) (uint64, error) {
	if size > MaxDataSize {
		return 0, ErrDataTooLarge
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = value
	}
	return in.append(buf)
}

// InternFile reads path off disk and interns its raw bytes, for the
// `file("path")` built-in (spec §4.4, supplemented from
// original_source/'s read_file_as_sv behavior: the whole file is
// embedded verbatim with no trailing NUL).
func (in *Interner) InternFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("file(%q): %w", path, err)
	}
	return in.append(data)
}

// StringLen returns the length recorded for a string literal's
// address, if one was interned there.
func (in *Interner) StringLen(addr uint64) (int, bool) {
	n, ok := in.stringLens[addr]
	return n, ok
}
