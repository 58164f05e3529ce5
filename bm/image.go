package bm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Binary image layout (spec §6). This is the one interface in the
// system that must be bit-exact: little-endian, fixed header followed
// by program records, initial memory, then external-name records.
const (
	Magic   uint32 = 0xA4016D62
	Version uint16 = 8

	// NativeNameCapacity is the fixed, zero-padded width of each
	// external-name record.
	NativeNameCapacity = 256
)

// Bounded capacities. Exceeding any of these during a build is fatal
// (spec §3 invariants); a loader refuses any image whose header
// declares more than these limits.
const (
	MaxProgramSize  = 1 << 20
	MaxStackSize    = 1 << 16
	MaxMemorySize   = 1 << 24
	MaxMemoryLimit  = MaxMemorySize
	MaxExternals    = 1 << 12
	MaxIncludeLevel = 69
)

var (
	ErrBadMagic       = errors.New("bm: bad magic number")
	ErrBadVersion     = errors.New("bm: unsupported image version")
	ErrImageTooLarge  = errors.New("bm: image exceeds compiled-in limits")
	ErrMemoryOverflow = errors.New("bm: memory_size exceeds memory_capacity")
)

type header struct {
	Magic           uint32
	Version         uint16
	_pad            uint16
	ProgramSize     uint64
	Entry           uint64
	MemoryBase      uint64
	MemorySize      uint64
	MemoryCapacity  uint64
	ExternalsSize   uint64
}

// Image is the in-memory form of a BM program ready to execute or to
// be written to disk: the instruction array, initial data memory, the
// external-native name table, and the entry address.
type Image struct {
	Program        []Instruction
	Entry          uint64
	MemoryBase     uint64
	Memory         []byte
	MemoryCapacity uint64
	Externals      []string
}

// Write serializes img in the §6 binary layout.
func (img *Image) Write(w io.Writer) error {
	if len(img.Program) > MaxProgramSize {
		return fmt.Errorf("%w: program_size=%d", ErrImageTooLarge, len(img.Program))
	}
	if uint64(len(img.Memory)) > img.MemoryCapacity {
		return ErrMemoryOverflow
	}
	if len(img.Externals) > MaxExternals {
		return fmt.Errorf("%w: externals_size=%d", ErrImageTooLarge, len(img.Externals))
	}

	bw := bufio.NewWriter(w)

	h := header{
		Magic:          Magic,
		Version:        Version,
		ProgramSize:    uint64(len(img.Program)),
		Entry:          img.Entry,
		MemoryBase:     img.MemoryBase,
		MemorySize:     uint64(len(img.Memory)),
		MemoryCapacity: img.MemoryCapacity,
		ExternalsSize:  uint64(len(img.Externals)),
	}
	if err := writeHeader(bw, h); err != nil {
		return err
	}

	for _, instr := range img.Program {
		if err := binary.Write(bw, binary.LittleEndian, uint64(instr.Opcode)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(instr.Operand)); err != nil {
			return err
		}
	}

	if _, err := bw.Write(img.Memory); err != nil {
		return err
	}

	for _, name := range img.Externals {
		rec := make([]byte, NativeNameCapacity)
		copy(rec, name)
		if _, err := bw.Write(rec); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writeHeader(w io.Writer, h header) error {
	fields := []any{
		h.Magic, h.Version, h.ProgramSize, h.Entry,
		h.MemoryBase, h.MemorySize, h.MemoryCapacity, h.ExternalsSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadImage parses the §6 binary layout, validating magic, version and
// the bounded capacities before trusting any length from the header.
func ReadImage(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)

	var magic uint32
	var version uint16
	var programSize, entry, memoryBase, memorySize, memoryCapacity, externalsSize uint64

	fields := []any{&magic, &version, &programSize, &entry, &memoryBase, &memorySize, &memoryCapacity, &externalsSize}
	for _, f := range fields {
		if err := binary.Read(br, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("bm: reading header: %w", err)
		}
	}

	if magic != Magic {
		return nil, ErrBadMagic
	}
	if version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, version, Version)
	}
	if programSize > MaxProgramSize || memorySize > MaxMemorySize ||
		memoryCapacity > MaxMemoryLimit || externalsSize > MaxExternals {
		return nil, ErrImageTooLarge
	}
	if memorySize > memoryCapacity {
		return nil, ErrMemoryOverflow
	}

	program := make([]Instruction, programSize)
	for i := range program {
		var op, operand uint64
		if err := binary.Read(br, binary.LittleEndian, &op); err != nil {
			return nil, fmt.Errorf("bm: reading instruction %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &operand); err != nil {
			return nil, fmt.Errorf("bm: reading instruction %d operand: %w", i, err)
		}
		program[i] = Instruction{Opcode: Opcode(op), Operand: Word(operand)}
	}

	memory := make([]byte, memorySize)
	if _, err := io.ReadFull(br, memory); err != nil {
		return nil, fmt.Errorf("bm: reading memory: %w", err)
	}

	externals := make([]string, externalsSize)
	rec := make([]byte, NativeNameCapacity)
	for i := range externals {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, fmt.Errorf("bm: reading external %d: %w", i, err)
		}
		end := len(rec)
		for end > 0 && rec[end-1] == 0 {
			end--
		}
		externals[i] = string(rec[:end])
	}

	return &Image{
		Program:        program,
		Entry:          entry,
		MemoryBase:     memoryBase,
		Memory:         memory,
		MemoryCapacity: memoryCapacity,
		Externals:      externals,
	}, nil
}
