// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package eyemat

import "fmt"

// DataType identifies the kind of an emitted event.
type DataType int

const (
	// SampleType is a plain gaze sample.
	SampleType DataType = iota
	// SampleStartFix is a gaze sample that opens a fixation.
	SampleStartFix
	// SampleEndFix is a gaze sample that closes a fixation.
	SampleEndFix
	// MessageEvent is a trial or state transition marker.
	MessageEvent
	// NoPendingItems marks the end of the recording.
	NoPendingItems
)

// String returns the name used for the type in recording output files.
func (t DataType) String() string {
	switch t {
	case SampleType:
		return "SAMPLE_TYPE"
	case SampleStartFix:
		return "SAMPLESTARTFIX"
	case SampleEndFix:
		return "SAMPLEENDFIX"
	case MessageEvent:
		return "MESSAGEEVENT"
	case NoPendingItems:
		return "NO_PENDING_ITEMS"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// Interval is the closed span [Start, End] of one fixation, in device clock units.
type Interval struct {
	Start uint32
	End   uint32
}

// NewInterval returns the interval [start, end].
func NewInterval(start, end uint32) (Interval, error) {
	if start > end {
		return Interval{}, fmt.Errorf("invalid interval: start %d is after end %d", start, end)
	}
	return Interval{Start: start, End: end}, nil
}

// Contains reports whether t lies within the interval, bounds included.
func (iv Interval) Contains(t uint32) bool {
	return t >= iv.Start && t <= iv.End
}

// Event is one item decoded from a recording. The set of implementations
// is closed: Message, Sample and EndOfStream.
type Event interface {
	Type() DataType
	isEvent()
}

// Message is a trial or state transition.
type Message struct {
	Timestamp uint32
	Text      string
	Trigger   Trigger
}

func (Message) Type() DataType { return MessageEvent }
func (Message) isEvent()       {}

// Sample is one gaze sample. Gaze coordinates are NaN where the tracker lost the eye.
type Sample struct {
	Timestamp uint32
	GazeX     float32
	GazeY     float32
	Kind      DataType // SampleType, SampleStartFix or SampleEndFix
}

func (s Sample) Type() DataType { return s.Kind }
func (Sample) isEvent()         {}

// EndOfStream is returned once the recording has been fully replayed.
type EndOfStream struct{}

func (EndOfStream) Type() DataType { return NoPendingItems }
func (EndOfStream) isEvent()       {}
