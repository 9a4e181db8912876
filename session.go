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
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// Session is the stored form of a recorded session. Sample indices in
// TrialIndex are 1-based, as MATLAB writes them.
type Session struct {
	Timestamps     []uint32
	GazeX          []float32
	GazeY          []float32
	TrialIndex     [][StatesPerTrial]int // Per trial, the sample index of each state boundary
	TrialCodes     [][StatesPerTrial]int // Per trial, the trigger code of each state boundary
	FixationStarts []uint32
	FixationEnds   []uint32
	Struct         string // When set, variables are stored as fields of a struct with this name
}

// WriteSession writes s as a MAT-file.
func WriteSession(w io.Writer, hdr Header, s Session) error {
	n := len(s.Timestamps)
	if len(s.GazeX) != n || len(s.GazeY) != n {
		return fmt.Errorf("expected %d gaze samples, got %d x and %d y", n, len(s.GazeX), len(s.GazeY))
	}
	if len(s.TrialIndex) != len(s.TrialCodes) {
		return fmt.Errorf("expected %d trial codes, got %d", len(s.TrialIndex), len(s.TrialCodes))
	}

	eyePos := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		eyePos[i] = float64(s.GazeX[i])
		eyePos[n+i] = float64(s.GazeY[i])
	}

	trials := len(s.TrialIndex)
	index := make([]float64, 0, StatesPerTrial*trials)
	codes := make([]float64, 0, StatesPerTrial*trials)
	for i := 0; i < trials; i++ {
		for state := 0; state < StatesPerTrial; state++ {
			index = append(index, float64(s.TrialIndex[i][state]))
			codes = append(codes, float64(s.TrialCodes[i][state]))
		}
	}

	vars := []*Variable{
		uint32Vector(VarTimestamps, s.Timestamps),
		newVariable(VarEyePos, ClassSingle, 2, n, eyePos, false),
		newVariable(VarTrialIndex, ClassDouble, StatesPerTrial, trials, index, true),
		newVariable(VarTrialCodes, ClassDouble, StatesPerTrial, trials, codes, true),
		uint32Vector(VarFixationStarts, s.FixationStarts),
		uint32Vector(VarFixationEnds, s.FixationEnds),
	}
	if s.Struct != "" {
		vars = []*Variable{{Name: s.Struct, Class: ClassStruct, Rows: 1, Cols: 1, Fields: vars}}
	}

	mw, err := Create(w, hdr)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if err := mw.WriteVariable(v); err != nil {
			return err
		}
	}
	return mw.Close()
}

func uint32Vector(name string, xs []uint32) *Variable {
	values := make([]float64, len(xs))
	for i, x := range xs {
		values[i] = float64(x)
	}
	return newVariable(name, ClassUint32, 1, len(xs), values, false)
}

// newVariable builds a variable from values laid out row-major, or
// column-major when colMajor is set.
func newVariable(name string, class Class, rows, cols int, values []float64, colMajor bool) *Variable {
	v := &Variable{Name: name, Class: class, Rows: rows, Cols: cols}
	if rows*cols == 0 {
		v.Rows, v.Cols = 0, 0
		return v
	}
	if colMajor {
		v.Data = mat.DenseCopyOf(mat.NewDense(cols, rows, values).T())
	} else {
		v.Data = mat.NewDense(rows, cols, values)
	}
	return v
}
