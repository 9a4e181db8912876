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
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoTrials is returned when replaying a recording without trials.
	ErrNoTrials = errors.New("recording has no trials")
	// ErrOutOfRange is returned when the replay runs past the recorded samples.
	ErrOutOfRange = errors.New("sample index out of range")
	// ErrReleased is returned when replaying a released recording.
	ErrReleased = errors.New("recording has been released")
	// ErrInvalidFadeOut is returned when the fade-out is negative.
	ErrInvalidFadeOut = errors.New("fade-out must not be negative")
)

// DefaultFadeOut is the number of samples replayed after the last state
// boundary: one second at the tracker's 1 kHz sampling rate.
const DefaultFadeOut = 1000

// noBoundary is the next state boundary once every boundary has been passed.
const noBoundary = math.MaxInt

// State is the replay state of a Reader.
type State int

const (
	BeforeStart State = iota
	Running
	Exhausted
)

func (s State) String() string {
	switch s {
	case BeforeStart:
		return "BeforeStart"
	case Running:
		return "Running"
	case Exhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Reader.
type Option func(*Reader)

// WithFadeOut sets the number of samples replayed after the last state boundary.
func WithFadeOut(samples int) Option {
	return func(r *Reader) {
		r.fadeOut = samples
	}
}

// WithVersion sets the source of the experiment version number reported
// by ExperimentVersion triggers.
func WithVersion(version func() int) Option {
	return func(r *Reader) {
		r.version = version
	}
}

// Reader replays a recording one event at a time. State boundaries are
// emitted as messages at the sample they fall on, and that sample is then
// replayed again as gaze data.
type Reader struct {
	rec     *Recording
	fadeOut int
	version func() int

	state           State
	current         Event
	err             error
	currentTime     int      // Sample index of the last event
	stateIndex      int      // Index of the last state boundary emitted
	stateTime       int      // Sample index of the next state boundary
	lastTriggerTime int      // Sample index at which the replay ends
	fixationIndex   int      // Index of nextFixation
	nextFixation    Interval // Fixation the next sample is classified against
}

// NewReader creates a Reader positioned before the first event of rec.
func NewReader(rec *Recording, opts ...Option) (*Reader, error) {
	r := &Reader{
		rec:     rec,
		fadeOut: DefaultFadeOut,
		version: func() int { return 0 },
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.fadeOut < 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidFadeOut, r.fadeOut)
	}
	if rec.Released() {
		return nil, ErrReleased
	}
	if rec.NumTrials() == 0 {
		return nil, ErrNoTrials
	}

	r.currentTime = rec.StateTime(0)
	r.stateTime = rec.StateTime(1)
	r.lastTriggerTime = rec.StateTime(rec.NumStates()-1) + r.fadeOut

	// The cursor is not advanced here; classify skips past passed fixations.
	if rec.NumFixations() > 0 {
		r.nextFixation = rec.Fixation(0)
	}

	return r, nil
}

// Next decodes the next event. Once the recording is exhausted every call
// returns EndOfStream. Errors are final: later calls return the same error.
func (r *Reader) Next() (Event, error) {
	if r.err != nil {
		return nil, r.err
	}

	ev, err := r.next()
	if err != nil {
		r.err = err
		return nil, err
	}

	r.current = ev
	return ev, nil
}

func (r *Reader) next() (Event, error) {
	if r.state == Exhausted {
		return EndOfStream{}, nil
	}
	if r.rec.Released() {
		return nil, ErrReleased
	}

	if r.state == BeforeStart {
		msg, err := r.message()
		if err != nil {
			return nil, err
		}

		// Step back so the boundary sample is replayed as gaze data.
		r.currentTime--
		r.state = Running
		return msg, nil
	}

	r.currentTime++

	if r.currentTime >= r.stateTime {
		r.stateIndex++
		if r.stateIndex < r.rec.NumStates()-1 {
			r.stateTime = r.rec.StateTime(r.stateIndex + 1)
		} else {
			r.stateTime = noBoundary
		}

		msg, err := r.message()
		if err != nil {
			return nil, err
		}

		r.currentTime--
		return msg, nil
	}

	if r.currentTime >= r.lastTriggerTime {
		r.state = Exhausted
		return EndOfStream{}, nil
	}

	if err := r.checkSample(); err != nil {
		return nil, err
	}

	ts := r.rec.Timestamp(r.currentTime)
	x, y := r.rec.Gaze(r.currentTime)
	return Sample{Timestamp: ts, GazeX: x, GazeY: y, Kind: r.classify(ts)}, nil
}

// Current returns the last event returned by Next, or nil before the first call.
func (r *Reader) Current() Event {
	return r.current
}

// State returns the replay state.
func (r *Reader) State() State {
	return r.state
}

// message builds the message for the current state boundary at the current sample.
func (r *Reader) message() (Message, error) {
	if err := r.checkSample(); err != nil {
		return Message{}, err
	}

	trigger, err := InterpretCode(r.rec.StateCode(r.stateIndex), r.version())
	if err != nil {
		return Message{}, fmt.Errorf("state boundary %d: %w", r.stateIndex, err)
	}

	return Message{
		Timestamp: r.rec.Timestamp(r.currentTime),
		Text:      trigger.String(),
		Trigger:   trigger,
	}, nil
}

func (r *Reader) checkSample() error {
	if r.currentTime < 0 || r.currentTime >= r.rec.NumSamples() {
		return fmt.Errorf("%w: sample %d of %d", ErrOutOfRange, r.currentTime, r.rec.NumSamples())
	}
	return nil
}

// classify reports whether a sample opens or closes a fixation. Fixations
// are ordered and non-overlapping, so the cursor only moves forward.
func (r *Reader) classify(ts uint32) DataType {
	n := r.rec.NumFixations()
	if n == 0 {
		return SampleType
	}

	for ts > r.nextFixation.End && r.fixationIndex+1 < n {
		r.fixationIndex++
		r.nextFixation = r.rec.Fixation(r.fixationIndex)
	}

	switch ts {
	case r.nextFixation.Start:
		return SampleStartFix
	case r.nextFixation.End:
		return SampleEndFix
	default:
		return SampleType
	}
}
