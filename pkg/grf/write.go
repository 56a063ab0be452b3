package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"strings"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// File is one file written by Write.
type File struct {
	Name string
	Data []byte
}

// Write builds a version 0x200 archive holding files. Contents and the file
// table are zlib compressed; names are stored EUC-KR encoded with backslash
// separators, as the game client expects.
func Write(w io.Writer, files []File) error {
	var body, table bytes.Buffer

	for _, f := range files {
		compressed, err := deflate(f.Data)
		if err != nil {
			return err
		}

		name, _, err := transform.String(korean.EUCKR.NewEncoder(), strings.ReplaceAll(f.Name, "/", "\\"))
		if err != nil {
			return err
		}

		offset := uint32(body.Len())
		body.Write(compressed)

		table.WriteString(name)
		table.WriteByte(0)
		binary.Write(&table, binary.LittleEndian, uint32(len(compressed))) // compressed
		binary.Write(&table, binary.LittleEndian, uint32(len(compressed))) // aligned
		binary.Write(&table, binary.LittleEndian, uint32(len(f.Data)))
		table.WriteByte(FlagFile)
		binary.Write(&table, binary.LittleEndian, offset)
	}

	compressedTable, err := deflate(table.Bytes())
	if err != nil {
		return err
	}

	header := Header{
		TableOffset: uint32(body.Len()),
		FileCount:   uint32(len(files)) + 7,
		Version:     Version200,
	}
	copy(header.Magic[:], grfMagic)

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, header)
	out.Write(body.Bytes())
	binary.Write(&out, binary.LittleEndian, uint32(len(compressedTable)))
	binary.Write(&out, binary.LittleEndian, uint32(table.Len()))
	out.Write(compressedTable)

	_, err = w.Write(out.Bytes())
	return err
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
