// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package replay drives a decoder to the end of a recording and hands
// every event to a set of sinks.
package replay

import (
	"context"
	"fmt"

	"github.com/OpenPSG/eyemat"
	"github.com/OpenPSG/eyemat/internal/log"
)

// Stats counts the events of one replay.
type Stats struct {
	Samples        int
	FixationStarts int
	FixationEnds   int
	Messages       int
	First          uint32 // Timestamp of the first event
	Last           uint32 // Timestamp of the last event
}

// Events returns the total number of events, end of stream excluded.
func (s Stats) Events() int {
	return s.Samples + s.FixationStarts + s.FixationEnds + s.Messages
}

func (s *Stats) add(ev eyemat.Event) {
	var ts uint32
	switch ev := ev.(type) {
	case eyemat.Sample:
		ts = ev.Timestamp
		switch ev.Kind {
		case eyemat.SampleStartFix:
			s.FixationStarts++
		case eyemat.SampleEndFix:
			s.FixationEnds++
		default:
			s.Samples++
		}
	case eyemat.Message:
		ts = ev.Timestamp
		s.Messages++
	}

	if s.Events() == 1 {
		s.First = ts
	}
	s.Last = ts
}

// Runner replays a recording into its sinks.
type Runner struct {
	logger *log.Logger
	sinks  []Sink
}

// NewRunner creates a Runner. A nil logger discards log output.
func NewRunner(logger *log.Logger, sinks ...Sink) *Runner {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Runner{logger: logger, sinks: sinks}
}

// Run pulls events from r until the end of the stream, the first error, or
// the cancellation of ctx. Sinks are flushed on every exit so that output
// written so far ends on a whole event.
func (rn *Runner) Run(ctx context.Context, r *eyemat.Reader) (Stats, error) {
	var stats Stats

	for {
		if err := ctx.Err(); err != nil {
			rn.logger.Warn("replay cancelled", map[string]any{"events": stats.Events()})
			rn.abort(ctx)
			return stats, err
		}

		ev, err := r.Next()
		if err != nil {
			rn.logger.Error("replay failed", map[string]any{
				"events": stats.Events(),
				"error":  err.Error(),
			})
			rn.abort(ctx)
			return stats, err
		}

		if _, ok := ev.(eyemat.EndOfStream); ok {
			break
		}

		if msg, ok := ev.(eyemat.Message); ok {
			rn.logger.Debug("state transition", map[string]any{
				"timestamp": msg.Timestamp,
				"message":   msg.Text,
			})
		}

		for _, sink := range rn.sinks {
			if err := sink.Emit(ctx, ev); err != nil {
				rn.abort(ctx)
				return stats, fmt.Errorf("error emitting event %d: %w", stats.Events(), err)
			}
		}
		stats.add(ev)
	}

	for _, sink := range rn.sinks {
		if err := sink.Flush(ctx); err != nil {
			return stats, fmt.Errorf("error flushing sink: %w", err)
		}
	}

	rn.logger.Info("replay finished", map[string]any{
		"samples":         stats.Samples,
		"fixation_starts": stats.FixationStarts,
		"fixation_ends":   stats.FixationEnds,
		"messages":        stats.Messages,
		"first":           stats.First,
		"last":            stats.Last,
	})

	return stats, nil
}

// abort flushes the sinks after a failed or cancelled replay. Flush errors
// are logged since the replay error takes precedence.
func (rn *Runner) abort(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, sink := range rn.sinks {
		if err := sink.Flush(ctx); err != nil {
			rn.logger.Warn("error flushing sink", map[string]any{"error": err.Error()})
		}
	}
}
