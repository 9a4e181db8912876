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
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// DefaultDelimiter separates values in a raycast line.
	DefaultDelimiter = ","
	// EndOfFrameFlag marks the end of a frame in raycast output.
	EndOfFrameFlag = "F"
)

// Vec2 is a 2D vector.
type Vec2 struct {
	X, Y float32
}

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// RaycastData is one frame's raycast sample. Every field is optional and
// only fields that are set appear in the output line. Build records with
// the With methods; they return modified copies.
type RaycastData struct {
	Type                *DataType
	Time                *uint32
	ObjName             *string
	CenterOffset        *Vec2
	HitObjLocation      *Vec3
	RawGaze             *Vec2
	SubjectLoc          *Vec3
	SubjectRotation     *float32
	IsLastSampleInFrame *bool
	AngularOffset       *Vec2
	Delimiter           string // DefaultDelimiter when empty
}

// WithType sets the event type.
func (d RaycastData) WithType(t DataType) RaycastData {
	d.Type = &t
	return d
}

func (d RaycastData) WithTime(t uint32) RaycastData {
	d.Time = &t
	return d
}

func (d RaycastData) WithObjName(name string) RaycastData {
	d.ObjName = &name
	return d
}

func (d RaycastData) WithCenterOffset(v Vec2) RaycastData {
	d.CenterOffset = &v
	return d
}

func (d RaycastData) WithHitObjLocation(v Vec3) RaycastData {
	d.HitObjLocation = &v
	return d
}

func (d RaycastData) WithRawGaze(v Vec2) RaycastData {
	d.RawGaze = &v
	return d
}

func (d RaycastData) WithSubjectLoc(v Vec3) RaycastData {
	d.SubjectLoc = &v
	return d
}

func (d RaycastData) WithSubjectRotation(r float32) RaycastData {
	d.SubjectRotation = &r
	return d
}

func (d RaycastData) WithLastSampleInFrame(b bool) RaycastData {
	d.IsLastSampleInFrame = &b
	return d
}

func (d RaycastData) WithAngularOffset(v Vec2) RaycastData {
	d.AngularOffset = &v
	return d
}

// WithDelimiter sets the separator used by Line.
func (d RaycastData) WithDelimiter(delim string) RaycastData {
	d.Delimiter = delim
	return d
}

// Line formats the set fields as one delimited line, without a trailing
// delimiter or newline. Vector components are separated by the same
// delimiter as fields.
func (d RaycastData) Line() string {
	values := make([]string, 0, 20)

	if d.Type != nil {
		values = append(values, d.Type.String())
	}
	if d.Time != nil {
		values = append(values, strconv.FormatUint(uint64(*d.Time), 10))
	}
	if d.ObjName != nil {
		values = append(values, *d.ObjName)
	}
	if d.CenterOffset != nil {
		values = appendVec2(values, *d.CenterOffset)
	}
	if d.HitObjLocation != nil {
		values = appendVec3(values, *d.HitObjLocation)
	}
	if d.RawGaze != nil {
		values = appendVec2(values, *d.RawGaze)
	}
	if d.SubjectLoc != nil {
		values = appendVec3(values, *d.SubjectLoc)
	}
	if d.SubjectRotation != nil {
		values = append(values, formatFloat(*d.SubjectRotation))
	}
	if d.IsLastSampleInFrame != nil {
		values = append(values, formatBool(*d.IsLastSampleInFrame))
	}
	if d.AngularOffset != nil {
		values = appendVec2(values, *d.AngularOffset)
	}

	delim := d.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}
	return strings.Join(values, delim)
}

func appendVec2(values []string, v Vec2) []string {
	return append(values, formatFloat(v.X), formatFloat(v.Y))
}

func appendVec3(values []string, v Vec3) []string {
	return append(values, formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
}

// formatFloat uses the shortest decimal that round-trips the float32.
func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}

// Booleans are capitalised to match existing raycast files.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// RaycastWriter writes raycast records, one line each.
type RaycastWriter struct {
	w     *bufio.Writer
	lines int // Number of lines written so far.
}

// NewRaycastWriter creates a RaycastWriter writing to w.
func NewRaycastWriter(w io.Writer) *RaycastWriter {
	return &RaycastWriter{w: bufio.NewWriter(w)}
}

// Write writes d as one line.
func (rw *RaycastWriter) Write(d RaycastData) error {
	if _, err := rw.w.WriteString(d.Line()); err != nil {
		return fmt.Errorf("error writing raycast line: %w", err)
	}
	if err := rw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("error writing raycast line: %w", err)
	}
	rw.lines++
	return nil
}

// Lines returns the number of lines written so far.
func (rw *RaycastWriter) Lines() int {
	return rw.lines
}

// Close flushes buffered lines to the underlying writer.
func (rw *RaycastWriter) Close() error {
	return rw.w.Flush()
}
