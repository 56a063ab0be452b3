// Package grf reads Ragnarok Online GRF 0x200 archives, the container RSM
// models ship in.
package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Faultbox/mos-export/pkg/encoding"
)

// Archive errors.
var (
	ErrInvalidMagic       = errors.New("invalid GRF magic")
	ErrUnsupportedVersion = errors.New("unsupported GRF version")
	ErrCorruptTable       = errors.New("corrupt GRF file table")
	ErrNotFound           = errors.New("file not found in GRF")
	ErrEncrypted          = errors.New("encrypted GRF entries are not supported")
)

const (
	grfMagic = "Master of Magic"

	// HeaderSize is the size of the archive header. Table and entry offsets
	// are relative to its end.
	HeaderSize = 46

	// Version200 is the only supported archive version.
	Version200 = 0x200

	entryInfoSize = 17 // compressed, aligned, uncompressed sizes, flags, offset
)

// Entry flags.
const (
	FlagFile      = 0x01
	FlagMixCrypt  = 0x02
	FlagDESHeader = 0x04
)

// Header contains GRF file header information.
type Header struct {
	Magic         [15]byte
	EncryptionKey [15]byte
	TableOffset   uint32
	Seed          uint32
	FileCount     uint32 // stored as count + seed + 7
	Version       uint32
}

// Entry describes a file stored in the archive.
type Entry struct {
	Name             string
	CompressedSize   uint32
	AlignedSize      uint32
	UncompressedSize uint32
	Flags            uint8
	Offset           uint32
}

// Archive is an opened GRF archive.
type Archive struct {
	r       io.ReaderAt
	closer  io.Closer
	header  Header
	entries map[string]*Entry
}

// Open opens a GRF archive on disk.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	a, err := NewArchive(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// NewArchive reads the header and file table from r.
func NewArchive(r io.ReaderAt) (*Archive, error) {
	a := &Archive{r: r, entries: make(map[string]*Entry)}

	if err := a.readHeader(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if err := a.readFileTable(); err != nil {
		return nil, fmt.Errorf("reading file table: %w", err)
	}
	return a, nil
}

// Close closes the underlying file, if the archive owns one.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *Archive) readHeader() error {
	section := io.NewSectionReader(a.r, 0, HeaderSize)
	if err := binary.Read(section, binary.LittleEndian, &a.header); err != nil {
		return err
	}
	if string(a.header.Magic[:]) != grfMagic {
		return ErrInvalidMagic
	}
	if a.header.Version != Version200 {
		return fmt.Errorf("%w: 0x%x", ErrUnsupportedVersion, a.header.Version)
	}
	return nil
}

func (a *Archive) readFileTable() error {
	tableOffset := int64(a.header.TableOffset) + HeaderSize

	var sizes [8]byte
	if _, err := a.r.ReadAt(sizes[:], tableOffset); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTable, err)
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[0:])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:])

	compressed := make([]byte, compressedSize)
	if _, err := a.r.ReadAt(compressed, tableOffset+8); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTable, err)
	}
	table, err := inflate(compressed, uncompressedSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTable, err)
	}

	if a.header.FileCount < a.header.Seed+7 {
		return fmt.Errorf("%w: file count %d", ErrCorruptTable, a.header.FileCount)
	}
	fileCount := a.header.FileCount - a.header.Seed - 7

	offset := 0
	for i := uint32(0); i < fileCount; i++ {
		nameEnd := bytes.IndexByte(table[offset:], 0)
		if nameEnd < 0 || offset+nameEnd+1+entryInfoSize > len(table) {
			return fmt.Errorf("%w: entry %d truncated", ErrCorruptTable, i)
		}
		name := encoding.EUCKRToUTF8(table[offset : offset+nameEnd])
		info := table[offset+nameEnd+1:]
		offset += nameEnd + 1 + entryInfoSize

		entry := &Entry{
			Name:             normalizePath(name),
			CompressedSize:   binary.LittleEndian.Uint32(info[0:]),
			AlignedSize:      binary.LittleEndian.Uint32(info[4:]),
			UncompressedSize: binary.LittleEndian.Uint32(info[8:]),
			Flags:            info[12],
			Offset:           binary.LittleEndian.Uint32(info[13:]),
		}

		// Directories carry no file flag.
		if entry.Flags&FlagFile != 0 {
			a.entries[entry.Name] = entry
		}
	}

	return nil
}

// List returns all file paths in the archive, sorted.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.entries))
	for name := range a.entries {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Glob returns the sorted file paths matching a path.Match pattern. Matching
// is case-insensitive and accepts backslash separators.
func (a *Archive) Glob(pattern string) ([]string, error) {
	pattern = normalizePath(pattern)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	var result []string
	for _, name := range a.List() {
		if ok, _ := path.Match(pattern, name); ok {
			result = append(result, name)
		}
	}
	return result, nil
}

// Contains checks if a file exists.
func (a *Archive) Contains(name string) bool {
	_, ok := a.entries[normalizePath(name)]
	return ok
}

// Entry returns the table entry for a file.
func (a *Archive) Entry(name string) (*Entry, bool) {
	e, ok := a.entries[normalizePath(name)]
	return e, ok
}

// Read returns the uncompressed contents of a file.
func (a *Archive) Read(name string) ([]byte, error) {
	entry, ok := a.entries[normalizePath(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if entry.Flags&(FlagMixCrypt|FlagDESHeader) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrEncrypted, name)
	}

	data := make([]byte, entry.AlignedSize)
	if _, err := a.r.ReadAt(data, int64(entry.Offset)+HeaderSize); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	if entry.CompressedSize == entry.UncompressedSize && entry.UncompressedSize <= entry.AlignedSize {
		return data[:entry.UncompressedSize], nil
	}
	if entry.CompressedSize > entry.AlignedSize {
		return nil, fmt.Errorf("%w: %s compressed size exceeds aligned size", ErrCorruptTable, name)
	}

	result, err := inflate(data[:entry.CompressedSize], entry.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("inflating %s: %w", name, err)
	}
	return result, nil
}

func inflate(compressed []byte, size uint32) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	result := make([]byte, size)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

func normalizePath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.ToLower(name)
}
