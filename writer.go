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
	"fmt"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/zlib"
	"gonum.org/v1/gonum/mat"
)

// Writer writes Level 5 MAT-files. Files are always written little endian.
type Writer struct {
	w         *bufio.Writer
	hdr       *Header
	variables int // Number of variables written so far.
}

// Create creates a new MAT-file writer that writes to the given writer.
func Create(w io.Writer, hdr Header) (*Writer, error) {
	if hdr.Text == "" {
		hdr.Text = fmt.Sprintf("MATLAB 5.0 MAT-file, Platform: GLNXA64, Created on: %s",
			time.Now().UTC().Format("Mon Jan _2 15:04:05 2006"))
	}
	if len(hdr.Text) > headerTextSize {
		return nil, fmt.Errorf("header text too long: %d bytes, max is %d bytes", len(hdr.Text), headerTextSize)
	}
	hdr.Version = matVersion
	hdr.ByteOrder = binary.LittleEndian

	mw := &Writer{w: bufio.NewWriter(w), hdr: &hdr}

	if err := mw.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return mw, nil
}

// Close flushes any buffered data to the underlying writer.
func (mw *Writer) Close() error {
	if err := mw.w.Flush(); err != nil {
		return fmt.Errorf("error flushing: %w", err)
	}
	return nil
}

// Variables returns the number of variables written so far.
func (mw *Writer) Variables() int {
	return mw.variables
}

// WriteMatrix writes m as a double precision variable.
func (mw *Writer) WriteMatrix(name string, m mat.Matrix) error {
	rows, cols := m.Dims()
	return mw.WriteVariable(&Variable{
		Name:  name,
		Class: ClassDouble,
		Rows:  rows,
		Cols:  cols,
		Data:  mat.DenseCopyOf(m),
	})
}

// WriteUint32 writes a uint32 variable. Values are given in column-major
// order, the way MATLAB lays them out.
func (mw *Writer) WriteUint32(name string, rows, cols int, values []uint32) error {
	if len(values) != rows*cols {
		return fmt.Errorf("expected %d values, got %d", rows*cols, len(values))
	}

	v := &Variable{Name: name, Class: ClassUint32, Rows: rows, Cols: cols}
	if len(values) > 0 {
		data := make([]float64, len(values))
		for i, x := range values {
			data[i] = float64(x)
		}
		v.Data = mat.DenseCopyOf(mat.NewDense(cols, rows, data).T())
	}

	return mw.WriteVariable(v)
}

// WriteVariable writes a numeric or struct variable.
func (mw *Writer) WriteVariable(v *Variable) error {
	body, err := encodeArray(v)
	if err != nil {
		return fmt.Errorf("error encoding variable %q: %w", v.Name, err)
	}

	var elem bytes.Buffer
	writeElement(&elem, miMATRIX, body)

	if mw.hdr.Compressed {
		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(elem.Bytes()); err != nil {
			return fmt.Errorf("error compressing variable %q: %w", v.Name, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("error compressing variable %q: %w", v.Name, err)
		}

		elem.Reset()
		writeTag(&elem, miCOMPRESSED, z.Len())
		elem.Write(z.Bytes())
	}

	if _, err := mw.w.Write(elem.Bytes()); err != nil {
		return err
	}

	mw.variables++
	return nil
}

func (mw *Writer) writeHeader() error {
	b := bytes.Repeat([]byte{' '}, headerSize)
	copy(b, mw.hdr.Text)

	// No subsystem data.
	for i := headerTextSize; i < headerTextSize+8; i++ {
		b[i] = 0
	}
	binary.LittleEndian.PutUint16(b[124:126], mw.hdr.Version)
	copy(b[126:128], "IM")

	_, err := mw.w.Write(b)
	return err
}

// encodeArray encodes the contents of a miMATRIX element.
func encodeArray(v *Variable) ([]byte, error) {
	var buf bytes.Buffer

	flags := make([]byte, 8)
	binary.LittleEndian.PutUint32(flags[0:4], uint32(v.Class))
	writeElement(&buf, miUINT32, flags)

	rows, cols := v.Rows, v.Cols
	if v.Class == ClassStruct {
		rows, cols = 1, 1
	}
	dims := make([]byte, 8)
	binary.LittleEndian.PutUint32(dims[0:4], uint32(rows))
	binary.LittleEndian.PutUint32(dims[4:8], uint32(cols))
	writeElement(&buf, miINT32, dims)

	writeElement(&buf, miINT8, []byte(v.Name))

	switch v.Class {
	case ClassStruct:
		nameLen := 1
		for _, f := range v.Fields {
			nameLen = max(nameLen, len(f.Name)+1)
		}

		lenBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBytes, uint32(nameLen))
		writeElement(&buf, miINT32, lenBytes)

		names := make([]byte, nameLen*len(v.Fields))
		for i, f := range v.Fields {
			copy(names[i*nameLen:], f.Name)
		}
		writeElement(&buf, miINT8, names)

		for _, f := range v.Fields {
			field := *f
			field.Name = ""
			body, err := encodeArray(&field)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			writeElement(&buf, miMATRIX, body)
		}
	case ClassDouble, ClassSingle, ClassInt32, ClassUint32:
		values := columnMajor(v)
		if len(values) != v.Rows*v.Cols {
			return nil, fmt.Errorf("expected %d values, got %d", v.Rows*v.Cols, len(values))
		}
		typ, data := encodeNumeric(v.Class, values)
		writeElement(&buf, typ, data)
	default:
		return nil, fmt.Errorf("unsupported class %d", v.Class)
	}

	return buf.Bytes(), nil
}

func columnMajor(v *Variable) []float64 {
	if v.Data == nil {
		return nil
	}
	var t mat.Dense
	t.CloneFrom(v.Data.T())
	return t.RawMatrix().Data
}

func encodeNumeric(class Class, values []float64) (uint32, []byte) {
	switch class {
	case ClassSingle:
		b := make([]byte, 4*len(values))
		for i, x := range values {
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(float32(x)))
		}
		return miSINGLE, b
	case ClassInt32:
		b := make([]byte, 4*len(values))
		for i, x := range values {
			binary.LittleEndian.PutUint32(b[i*4:], uint32(int32(x)))
		}
		return miINT32, b
	case ClassUint32:
		b := make([]byte, 4*len(values))
		for i, x := range values {
			binary.LittleEndian.PutUint32(b[i*4:], uint32(x))
		}
		return miUINT32, b
	default:
		b := make([]byte, 8*len(values))
		for i, x := range values {
			binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(x))
		}
		return miDOUBLE, b
	}
}

// writeElement writes a tagged data element, using the small element
// format for payloads of at most four bytes.
func writeElement(buf *bytes.Buffer, typ uint32, data []byte) {
	if n := len(data); n > 0 && n <= 4 {
		tag := make([]byte, 8)
		binary.LittleEndian.PutUint32(tag[0:4], uint32(n)<<16|typ)
		copy(tag[4:], data)
		buf.Write(tag)
		return
	}

	writeTag(buf, typ, len(data))
	buf.Write(data)
	buf.Write(make([]byte, padding(len(data))))
}

func writeTag(buf *bytes.Buffer, typ uint32, n int) {
	tag := make([]byte, 8)
	binary.LittleEndian.PutUint32(tag[0:4], typ)
	binary.LittleEndian.PutUint32(tag[4:8], uint32(n))
	buf.Write(tag)
}
