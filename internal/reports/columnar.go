package reports

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/matchlog/matchlog/internal/compression"
)

// Timeline reports are stored column-oriented so a consumer can pull one
// series without decoding the rest. Layout:
//
//	magic "MLCR" | version u8 | algorithm u8 | columns u16 | rows u32
//	per column: name len u16 | name | type u8 | block len u32 | block
//
// Blocks are compressed with the named algorithm. Integers and floats are
// fixed 8-byte little-endian; strings are length-prefixed.

var columnarMagic = [4]byte{'M', 'L', 'C', 'R'}

const columnarVersion = 1

const defaultColumnarAlgo = compression.Snappy

// ColumnType identifies a column's value encoding.
type ColumnType uint8

const (
	ColumnInt64 ColumnType = iota
	ColumnFloat64
	ColumnString
)

// Column is one named series. Exactly the slice matching Type is used.
type Column struct {
	Name    string
	Type    ColumnType
	Ints    []int64
	Floats  []float64
	Strings []string
}

func (c *Column) rows() int {
	switch c.Type {
	case ColumnInt64:
		return len(c.Ints)
	case ColumnFloat64:
		return len(c.Floats)
	case ColumnString:
		return len(c.Strings)
	}
	return 0
}

// WriteColumnar writes the columns as one columnar file.
func WriteColumnar(w io.Writer, algo compression.Algorithm, cols []Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("no columns to write")
	}

	rows := cols[0].rows()
	for _, c := range cols {
		if c.rows() != rows {
			return fmt.Errorf("column %s has %d rows, want %d", c.Name, c.rows(), rows)
		}
	}

	comp, err := compression.GetCompressor(algo)
	if err != nil {
		return err
	}

	header := make([]byte, 0, 12)
	header = append(header, columnarMagic[:]...)
	header = append(header, columnarVersion, byte(algo))
	header = binary.LittleEndian.AppendUint16(header, uint16(len(cols)))
	header = binary.LittleEndian.AppendUint32(header, uint32(rows))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write columnar header: %w", err)
	}

	for _, c := range cols {
		block, err := comp.Compress(encodeBlock(&c))
		if err != nil {
			return fmt.Errorf("failed to compress column %s: %w", c.Name, err)
		}

		buf := make([]byte, 0, 2+len(c.Name)+1+4+len(block))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.Name)))
		buf = append(buf, c.Name...)
		buf = append(buf, byte(c.Type))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(block)))
		buf = append(buf, block...)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("failed to write column %s: %w", c.Name, err)
		}
	}
	return nil
}

func encodeBlock(c *Column) []byte {
	var buf []byte
	switch c.Type {
	case ColumnInt64:
		buf = make([]byte, 0, 8*len(c.Ints))
		for _, v := range c.Ints {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
		}
	case ColumnFloat64:
		buf = make([]byte, 0, 8*len(c.Floats))
		for _, v := range c.Floats {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	case ColumnString:
		for _, v := range c.Strings {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
			buf = append(buf, v...)
		}
	}
	return buf
}

// ReadColumnar reads a columnar file back into columns.
func ReadColumnar(r io.Reader) ([]Column, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read columnar header: %w", err)
	}
	if !bytes.Equal(header[:4], columnarMagic[:]) {
		return nil, fmt.Errorf("bad columnar magic: %x", header[:4])
	}
	if header[4] != columnarVersion {
		return nil, fmt.Errorf("unsupported columnar version: %d", header[4])
	}

	comp, err := compression.GetCompressor(compression.Algorithm(header[5]))
	if err != nil {
		return nil, err
	}
	colCount := binary.LittleEndian.Uint16(header[6:8])
	rows := binary.LittleEndian.Uint32(header[8:12])

	cols := make([]Column, 0, colCount)
	for i := 0; i < int(colCount); i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("failed to read column header: %w", err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("failed to read column name: %w", err)
		}

		meta := make([]byte, 5)
		if _, err := io.ReadFull(r, meta); err != nil {
			return nil, fmt.Errorf("failed to read column %s header: %w", name, err)
		}
		colType := ColumnType(meta[0])
		blockLen := binary.LittleEndian.Uint32(meta[1:5])

		block := make([]byte, blockLen)
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("failed to read column %s block: %w", name, err)
		}
		raw, err := comp.Decompress(block)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress column %s: %w", name, err)
		}

		col, err := decodeBlock(string(name), colType, raw, int(rows))
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func decodeBlock(name string, colType ColumnType, raw []byte, rows int) (Column, error) {
	col := Column{Name: name, Type: colType}

	switch colType {
	case ColumnInt64:
		if len(raw) != 8*rows {
			return col, fmt.Errorf("column %s: bad int block size %d", name, len(raw))
		}
		col.Ints = make([]int64, rows)
		for i := 0; i < rows; i++ {
			col.Ints[i] = int64(binary.LittleEndian.Uint64(raw[8*i:]))
		}
	case ColumnFloat64:
		if len(raw) != 8*rows {
			return col, fmt.Errorf("column %s: bad float block size %d", name, len(raw))
		}
		col.Floats = make([]float64, rows)
		for i := 0; i < rows; i++ {
			col.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
	case ColumnString:
		col.Strings = make([]string, 0, rows)
		off := 0
		for i := 0; i < rows; i++ {
			if off+4 > len(raw) {
				return col, fmt.Errorf("column %s: truncated string block", name)
			}
			n := int(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
			if off+n > len(raw) {
				return col, fmt.Errorf("column %s: truncated string value", name)
			}
			col.Strings = append(col.Strings, string(raw[off:off+n]))
			off += n
		}
	default:
		return col, fmt.Errorf("column %s: unknown type %d", name, colType)
	}
	return col, nil
}
