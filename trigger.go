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

// TriggerKind is the kind of a session trigger. A packed trigger code is
// the kind plus a variant in its lowest decimal digit.
type TriggerKind int

const (
	NoTrigger         TriggerKind = 0
	TrialStarted      TriggerKind = 10
	CueOffset         TriggerKind = 20
	TrialEnded        TriggerKind = 30
	Timeout           TriggerKind = 40
	ExperimentVersion TriggerKind = 80
)

func (k TriggerKind) String() string {
	switch k {
	case NoTrigger:
		return "NoTrigger"
	case TrialStarted:
		return "TrialStarted"
	case CueOffset:
		return "CueOffset"
	case TrialEnded:
		return "TrialEnded"
	case Timeout:
		return "Timeout"
	case ExperimentVersion:
		return "ExperimentVersion"
	default:
		return fmt.Sprintf("TriggerKind(%d)", int(k))
	}
}

// Trigger is an interpreted trigger code.
type Trigger struct {
	Kind    TriggerKind
	Code    int // Packed code as recorded
	Version int // Experiment version number, ExperimentVersion triggers only
}

// Variant returns the low digit of the packed code.
func (t Trigger) Variant() int {
	return t.Code % 10
}

// String returns the message text logged for the trigger.
func (t Trigger) String() string {
	switch t.Kind {
	case CueOffset:
		return fmt.Sprintf("Cue Offset %d", t.Code)
	case TrialStarted:
		return fmt.Sprintf("Start Trial %d", t.Code)
	case TrialEnded:
		return fmt.Sprintf("End Trial %d", t.Code)
	case Timeout:
		return fmt.Sprintf("Timeout %d", t.Code)
	case ExperimentVersion:
		return fmt.Sprintf("Trigger Version %d", int(t.Kind)+t.Version)
	default:
		return fmt.Sprintf("Unknown %d", t.Code)
	}
}

// UnsupportedCodeError is returned for trigger codes of an unknown kind.
type UnsupportedCodeError struct {
	Code int
}

func (e *UnsupportedCodeError) Error() string {
	return fmt.Sprintf("unsupported trigger code %d", e.Code)
}

// InterpretCode decodes a packed trigger code. version is the running
// experiment version number, used by ExperimentVersion triggers.
func InterpretCode(code, version int) (Trigger, error) {
	kind := TriggerKind(code - code%10)
	switch kind {
	case CueOffset, TrialStarted, TrialEnded, Timeout:
		return Trigger{Kind: kind, Code: code}, nil
	case ExperimentVersion:
		return Trigger{Kind: kind, Code: code, Version: version}, nil
	default:
		return Trigger{}, &UnsupportedCodeError{Code: code}
	}
}
