// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package eyemat

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
	"gonum.org/v1/gonum/mat"
)

// Data element types.
const (
	miINT8       uint32 = 1
	miUINT8      uint32 = 2
	miINT16      uint32 = 3
	miUINT16     uint32 = 4
	miINT32      uint32 = 5
	miUINT32     uint32 = 6
	miSINGLE     uint32 = 7
	miDOUBLE     uint32 = 9
	miINT64      uint32 = 12
	miUINT64     uint32 = 13
	miMATRIX     uint32 = 14
	miCOMPRESSED uint32 = 15
)

const (
	headerSize     = 128
	headerTextSize = 116
	matVersion     = 0x0100
	flagComplex    = 0x0800
)

// Class is the MATLAB array class of a variable.
type Class uint8

const (
	ClassCell   Class = 1
	ClassStruct Class = 2
	ClassObject Class = 3
	ClassChar   Class = 4
	ClassSparse Class = 5
	ClassDouble Class = 6
	ClassSingle Class = 7
	ClassInt8   Class = 8
	ClassUint8  Class = 9
	ClassInt16  Class = 10
	ClassUint16 Class = 11
	ClassInt32  Class = 12
	ClassUint32 Class = 13
	ClassInt64  Class = 14
	ClassUint64 Class = 15
)

// Numeric reports whether arrays of the class hold numbers.
func (c Class) Numeric() bool {
	return c >= ClassDouble && c <= ClassUint64
}

// Header represents the MAT-file header.
type Header struct {
	Text       string           // Descriptive text (at most 116 bytes)
	Version    uint16           // Always 0x0100 for Level 5 files
	ByteOrder  binary.ByteOrder // Byte order the file was written in
	Compressed bool             // Variables are stored as compressed elements
}

// Variable is a named array stored in a MAT-file.
type Variable struct {
	Name   string
	Class  Class
	Rows   int
	Cols   int
	Data   *mat.Dense  // Numeric contents, nil when empty or non-numeric
	Fields []*Variable // Fields of a 1x1 struct
}

// Dims returns the number of rows and columns of the variable.
func (v *Variable) Dims() (int, int) {
	return v.Rows, v.Cols
}

// Vector returns the contents of a row or column vector. Empty arrays
// yield a nil slice.
func (v *Variable) Vector() ([]float64, error) {
	if v.Data == nil {
		return nil, nil
	}
	switch {
	case v.Rows == 1:
		return mat.Row(nil, 0, v.Data), nil
	case v.Cols == 1:
		return mat.Col(nil, 0, v.Data), nil
	default:
		return nil, fmt.Errorf("variable %q is %dx%d, not a vector", v.Name, v.Rows, v.Cols)
	}
}

// MatFile is a decoded MAT-file.
type MatFile struct {
	Header    Header
	Variables []*Variable
}

// Lookup finds a variable by name. Top-level variables are searched first,
// then the fields of top-level structs.
func (f *MatFile) Lookup(name string) (*Variable, bool) {
	for _, v := range f.Variables {
		if v.Name == name {
			return v, true
		}
	}
	for _, v := range f.Variables {
		for _, field := range v.Fields {
			if field.Name == name {
				return field, true
			}
		}
	}
	return nil, false
}

// DecodeMatFile reads a Level 5 MAT-file (MATLAB v5 through v7).
func DecodeMatFile(r io.Reader) (*MatFile, error) {
	br := bufio.NewReader(r)

	b := make([]byte, headerSize)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr := Header{Text: strings.TrimRight(string(b[:headerTextSize]), " \x00")}
	if strings.HasPrefix(hdr.Text, "MATLAB 7.3") {
		return nil, fmt.Errorf("unsupported MAT-file version 7.3 (HDF5)")
	}

	switch string(b[126:128]) {
	case "IM":
		hdr.ByteOrder = binary.LittleEndian
	case "MI":
		hdr.ByteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid endian indicator %q", b[126:128])
	}

	hdr.Version = hdr.ByteOrder.Uint16(b[124:126])
	if hdr.Version != matVersion {
		return nil, fmt.Errorf("unsupported MAT-file version %#04x", hdr.Version)
	}

	d := &matDecoder{order: hdr.ByteOrder}
	f := &MatFile{}
	for {
		typ, data, err := d.readElement(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if typ == miCOMPRESSED {
			hdr.Compressed = true
		}

		v, err := d.decodeTopLevel(typ, data)
		if err != nil {
			return nil, err
		}
		if v != nil {
			f.Variables = append(f.Variables, v)
		}
	}
	f.Header = hdr

	return f, nil
}

type matDecoder struct {
	order binary.ByteOrder
}

// readElement reads one top-level data element from the stream. io.EOF is
// returned only when the stream ends cleanly between elements.
func (d *matDecoder) readElement(br *bufio.Reader) (uint32, []byte, error) {
	tag := make([]byte, 8)
	if _, err := io.ReadFull(br, tag); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("error reading data element tag: %w", err)
	}

	word := d.order.Uint32(tag[0:4])
	if n := word >> 16; n != 0 {
		if n > 4 {
			return 0, nil, fmt.Errorf("invalid small data element size %d", n)
		}
		return word & 0xffff, tag[4 : 4+n], nil
	}

	n := int64(d.order.Uint32(tag[4:8]))
	data, err := io.ReadAll(io.LimitReader(br, n))
	if err != nil {
		return 0, nil, fmt.Errorf("error reading data element: %w", err)
	}
	if int64(len(data)) != n {
		return 0, nil, fmt.Errorf("truncated data element: expected %d bytes, got %d", n, len(data))
	}

	// Compressed elements are not padded.
	if word != miCOMPRESSED {
		if _, err := br.Discard(padding(int(n))); err != nil && !errors.Is(err, io.EOF) {
			return 0, nil, fmt.Errorf("error skipping element padding: %w", err)
		}
	}

	return word, data, nil
}

func (d *matDecoder) decodeTopLevel(typ uint32, data []byte) (*Variable, error) {
	switch typ {
	case miCOMPRESSED:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("error opening compressed element: %w", err)
		}
		defer zr.Close()

		inflated, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("error inflating compressed element: %w", err)
		}

		er := &elementReader{order: d.order, b: inflated}
		innerTyp, innerData, err := er.next()
		if err != nil {
			return nil, err
		}
		return d.decodeTopLevel(innerTyp, innerData)
	case miMATRIX:
		return d.decodeMatrix(data)
	default:
		// Anything else at the top level carries no variable.
		return nil, nil
	}
}

func (d *matDecoder) decodeMatrix(data []byte) (*Variable, error) {
	// An empty matrix element stands for an empty array with no header.
	if len(data) == 0 {
		return nil, nil
	}

	er := &elementReader{order: d.order, b: data}

	typ, flags, err := er.next()
	if err != nil {
		return nil, err
	}
	if typ != miUINT32 || len(flags) != 8 {
		return nil, fmt.Errorf("invalid array flags")
	}
	word := d.order.Uint32(flags[0:4])

	typ, dimBytes, err := er.next()
	if err != nil {
		return nil, err
	}
	dims, err := decodeInt32s(d.order, typ, dimBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid dimensions: %w", err)
	}
	if len(dims) < 2 {
		return nil, fmt.Errorf("invalid dimensions: %d dimension(s)", len(dims))
	}
	for _, dim := range dims[2:] {
		if dim != 1 {
			return nil, fmt.Errorf("unsupported %d-dimensional array", len(dims))
		}
	}

	_, name, err := er.next()
	if err != nil {
		return nil, err
	}

	v := &Variable{
		Name:  string(name),
		Class: Class(word & 0xff),
		Rows:  int(dims[0]),
		Cols:  int(dims[1]),
	}
	if v.Rows < 0 || v.Cols < 0 {
		return nil, fmt.Errorf("variable %q has negative dimensions", v.Name)
	}

	switch {
	case v.Class.Numeric():
		if word&flagComplex != 0 {
			return nil, fmt.Errorf("variable %q: complex arrays are not supported", v.Name)
		}

		typ, realPart, err := er.next()
		if err != nil {
			return nil, err
		}
		values, err := decodeNumeric(d.order, typ, realPart)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		if len(values) != v.Rows*v.Cols {
			return nil, fmt.Errorf("variable %q: expected %d values, got %d", v.Name, v.Rows*v.Cols, len(values))
		}

		// Values are column-major; gonum stores row-major.
		if len(values) > 0 {
			v.Data = mat.DenseCopyOf(mat.NewDense(v.Cols, v.Rows, values).T())
		}
	case v.Class == ClassStruct:
		fields, err := d.decodeStructFields(er, v.Rows*v.Cols)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		v.Fields = fields
	}

	return v, nil
}

func (d *matDecoder) decodeStructFields(er *elementReader, count int) ([]*Variable, error) {
	typ, lenBytes, err := er.next()
	if err != nil {
		return nil, err
	}
	lens, err := decodeInt32s(d.order, typ, lenBytes)
	if err != nil || len(lens) != 1 || lens[0] <= 0 {
		return nil, fmt.Errorf("invalid field name length")
	}
	nameLen := int(lens[0])

	_, nameBytes, err := er.next()
	if err != nil {
		return nil, err
	}
	if len(nameBytes)%nameLen != 0 {
		return nil, fmt.Errorf("invalid field names")
	}

	// Only scalar structs are descended into.
	if count != 1 {
		return nil, nil
	}

	fields := make([]*Variable, 0, len(nameBytes)/nameLen)
	for off := 0; off < len(nameBytes); off += nameLen {
		name := string(nameBytes[off : off+nameLen])
		if i := strings.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}

		typ, data, err := er.next()
		if err != nil {
			return nil, err
		}
		if typ != miMATRIX {
			return nil, fmt.Errorf("field %q: unexpected element type %d", name, typ)
		}

		field, err := d.decodeMatrix(data)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if field == nil {
			field = &Variable{Class: ClassDouble}
		}
		field.Name = name
		fields = append(fields, field)
	}

	return fields, nil
}

// elementReader walks the data elements packed inside a byte slice.
type elementReader struct {
	order binary.ByteOrder
	b     []byte
}

func (er *elementReader) next() (uint32, []byte, error) {
	if len(er.b) < 8 {
		return 0, nil, fmt.Errorf("truncated data element tag")
	}

	word := er.order.Uint32(er.b[0:4])
	if n := word >> 16; n != 0 {
		if n > 4 {
			return 0, nil, fmt.Errorf("invalid small data element size %d", n)
		}
		data := er.b[4 : 4+n]
		er.b = er.b[8:]
		return word & 0xffff, data, nil
	}

	n := int(er.order.Uint32(er.b[4:8]))
	if n > len(er.b)-8 {
		return 0, nil, fmt.Errorf("truncated data element: expected %d bytes, got %d", n, len(er.b)-8)
	}
	data := er.b[8 : 8+n]

	end := min(8+n+padding(n), len(er.b))
	er.b = er.b[end:]

	return word, data, nil
}

func decodeInt32s(order binary.ByteOrder, typ uint32, b []byte) ([]int32, error) {
	if typ != miINT32 || len(b)%4 != 0 {
		return nil, fmt.Errorf("expected int32 data, got type %d with %d bytes", typ, len(b))
	}
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(order.Uint32(b[i*4:]))
	}
	return out, nil
}

// decodeNumeric converts stored values of any numeric element type to float64.
func decodeNumeric(order binary.ByteOrder, typ uint32, b []byte) ([]float64, error) {
	size := elementSize(typ)
	if size == 0 {
		return nil, fmt.Errorf("unsupported numeric element type %d", typ)
	}
	if len(b)%size != 0 {
		return nil, fmt.Errorf("element of %d bytes is not a multiple of %d", len(b), size)
	}

	out := make([]float64, len(b)/size)
	for i := range out {
		p := b[i*size:]
		switch typ {
		case miINT8:
			out[i] = float64(int8(p[0]))
		case miUINT8:
			out[i] = float64(p[0])
		case miINT16:
			out[i] = float64(int16(order.Uint16(p)))
		case miUINT16:
			out[i] = float64(order.Uint16(p))
		case miINT32:
			out[i] = float64(int32(order.Uint32(p)))
		case miUINT32:
			out[i] = float64(order.Uint32(p))
		case miSINGLE:
			out[i] = float64(math.Float32frombits(order.Uint32(p)))
		case miDOUBLE:
			out[i] = math.Float64frombits(order.Uint64(p))
		case miINT64:
			out[i] = float64(int64(order.Uint64(p)))
		case miUINT64:
			out[i] = float64(order.Uint64(p))
		}
	}

	return out, nil
}

func elementSize(typ uint32) int {
	switch typ {
	case miINT8, miUINT8:
		return 1
	case miINT16, miUINT16:
		return 2
	case miINT32, miUINT32, miSINGLE:
		return 4
	case miDOUBLE, miINT64, miUINT64:
		return 8
	default:
		return 0
	}
}

// padding returns the bytes needed to align n to an 8-byte boundary.
func padding(n int) int {
	return (8 - n%8) % 8
}
