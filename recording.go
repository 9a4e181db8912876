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
	"math"
	"os"
)

// Names of the variables making up a recorded session.
const (
	VarTimestamps     = "timestamps"
	VarEyePos         = "eyePos"
	VarTrialIndex     = "trial_index"
	VarTrialCodes     = "trial_codes"
	VarFixationStarts = "fixationStarts"
	VarFixationEnds   = "fixationEnds"
)

// StatesPerTrial is the number of state boundaries recorded for every trial.
const StatesPerTrial = 3

// LoadError is returned when a recording cannot be loaded.
type LoadError struct {
	Path string // Empty when loaded from a reader
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("error loading recording: %v", e.Err)
	}
	return fmt.Sprintf("error loading recording %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Recording is a read-only view over a recorded session. All index-valued
// fields are 0-based.
type Recording struct {
	hdr        Header
	timestamps []uint32
	gazeX      []float32
	gazeY      []float32
	stateTimes []int // Flattened by state: boundary i is trial i/3, state i%3
	stateCodes []int
	fixStarts  []uint32
	fixEnds    []uint32
	released   bool
}

// OpenRecording loads the recorded session stored at path.
func OpenRecording(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	rec, err := readRecording(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return rec, nil
}

// ReadRecording loads a recorded session from r.
func ReadRecording(r io.Reader) (*Recording, error) {
	rec, err := readRecording(r)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	return rec, nil
}

func readRecording(r io.Reader) (*Recording, error) {
	f, err := DecodeMatFile(r)
	if err != nil {
		return nil, err
	}
	return newRecording(f)
}

func newRecording(f *MatFile) (*Recording, error) {
	rec := &Recording{hdr: f.Header}

	ts, err := lookupVector(f, VarTimestamps)
	if err != nil {
		return nil, err
	}
	if rec.timestamps, err = toUint32s(VarTimestamps, ts); err != nil {
		return nil, err
	}
	n := len(rec.timestamps)

	eyePos, err := lookupNumeric(f, VarEyePos)
	if err != nil {
		return nil, err
	}
	wantRows := 2
	if n == 0 {
		wantRows = 0
	}
	if rows, cols := eyePos.Dims(); rows != wantRows || cols != n {
		return nil, fmt.Errorf("%s is %dx%d, expected %dx%d", VarEyePos, rows, cols, wantRows, n)
	}
	rec.gazeX = make([]float32, n)
	rec.gazeY = make([]float32, n)
	for i := 0; i < n; i++ {
		rec.gazeX[i] = float32(eyePos.Data.At(0, i))
		rec.gazeY[i] = float32(eyePos.Data.At(1, i))
	}

	trialIndex, err := lookupNumeric(f, VarTrialIndex)
	if err != nil {
		return nil, err
	}
	trialCodes, err := lookupNumeric(f, VarTrialCodes)
	if err != nil {
		return nil, err
	}
	rows, trials := trialIndex.Dims()
	if codeRows, codeCols := trialCodes.Dims(); rows != codeRows || trials != codeCols {
		return nil, fmt.Errorf("%s is %dx%d but %s is %dx%d", VarTrialIndex, rows, trials, VarTrialCodes, codeRows, codeCols)
	}
	if trialIndex.Data == nil {
		trials = 0
	} else if rows != StatesPerTrial {
		return nil, fmt.Errorf("%s has %d rows, expected %d", VarTrialIndex, rows, StatesPerTrial)
	}

	rec.stateTimes = make([]int, StatesPerTrial*trials)
	rec.stateCodes = make([]int, StatesPerTrial*trials)
	for i := range rec.stateTimes {
		state, trial := i%StatesPerTrial, i/StatesPerTrial

		// Sample indices are stored 1-based.
		idx, err := toInt(VarTrialIndex, trialIndex.Data.At(state, trial))
		if err != nil {
			return nil, err
		}
		if idx < 1 || idx > n {
			return nil, fmt.Errorf("%s: trial %d state %d refers to sample %d, outside 1..%d", VarTrialIndex, trial, state, idx, n)
		}
		rec.stateTimes[i] = idx - 1

		if rec.stateCodes[i], err = toInt(VarTrialCodes, trialCodes.Data.At(state, trial)); err != nil {
			return nil, err
		}
	}

	starts, err := lookupVector(f, VarFixationStarts)
	if err != nil {
		return nil, err
	}
	ends, err := lookupVector(f, VarFixationEnds)
	if err != nil {
		return nil, err
	}
	if len(starts) != len(ends) {
		return nil, fmt.Errorf("%s has %d values but %s has %d", VarFixationStarts, len(starts), VarFixationEnds, len(ends))
	}
	if rec.fixStarts, err = toUint32s(VarFixationStarts, starts); err != nil {
		return nil, err
	}
	if rec.fixEnds, err = toUint32s(VarFixationEnds, ends); err != nil {
		return nil, err
	}
	for i := range rec.fixStarts {
		if _, err := NewInterval(rec.fixStarts[i], rec.fixEnds[i]); err != nil {
			return nil, fmt.Errorf("fixation %d: %w", i, err)
		}
	}

	return rec, nil
}

// Header returns the header of the file the recording was loaded from.
func (rec *Recording) Header() Header {
	return rec.hdr
}

// NumSamples returns the number of gaze samples.
func (rec *Recording) NumSamples() int {
	return len(rec.timestamps)
}

// NumTrials returns the number of trials.
func (rec *Recording) NumTrials() int {
	return len(rec.stateTimes) / StatesPerTrial
}

// NumStates returns the number of state boundaries, three per trial.
func (rec *Recording) NumStates() int {
	return len(rec.stateTimes)
}

// NumFixations returns the number of fixations.
func (rec *Recording) NumFixations() int {
	return len(rec.fixStarts)
}

// Timestamp returns the device clock time of sample i.
func (rec *Recording) Timestamp(i int) uint32 {
	return rec.timestamps[i]
}

// Gaze returns the gaze position of sample i.
func (rec *Recording) Gaze(i int) (x, y float32) {
	return rec.gazeX[i], rec.gazeY[i]
}

// StateTime returns the sample index of state boundary i.
func (rec *Recording) StateTime(i int) int {
	return rec.stateTimes[i]
}

// StateCode returns the trigger code recorded at state boundary i.
func (rec *Recording) StateCode(i int) int {
	return rec.stateCodes[i]
}

// Fixation returns fixation i.
func (rec *Recording) Fixation(i int) Interval {
	return Interval{Start: rec.fixStarts[i], End: rec.fixEnds[i]}
}

// Release frees the decoded arrays. It is safe to call more than once.
func (rec *Recording) Release() {
	rec.timestamps = nil
	rec.gazeX = nil
	rec.gazeY = nil
	rec.stateTimes = nil
	rec.stateCodes = nil
	rec.fixStarts = nil
	rec.fixEnds = nil
	rec.released = true
}

// Released reports whether Release has been called.
func (rec *Recording) Released() bool {
	return rec.released
}

func lookupNumeric(f *MatFile, name string) (*Variable, error) {
	v, ok := f.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("missing variable %q", name)
	}
	if !v.Class.Numeric() {
		return nil, fmt.Errorf("variable %q is not numeric", name)
	}
	return v, nil
}

func lookupVector(f *MatFile, name string) ([]float64, error) {
	v, err := lookupNumeric(f, name)
	if err != nil {
		return nil, err
	}
	return v.Vector()
}

func toInt(name string, x float64) (int, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
		return 0, fmt.Errorf("%s: %v is not an integer", name, x)
	}
	return int(x), nil
}

func toUint32s(name string, xs []float64) ([]uint32, error) {
	out := make([]uint32, len(xs))
	for i, x := range xs {
		v, err := toInt(name, x)
		if err != nil {
			return nil, err
		}
		if x < 0 || x > math.MaxUint32 {
			return nil, fmt.Errorf("%s: %d is out of range", name, v)
		}
		out[i] = uint32(v)
	}
	return out, nil
}
