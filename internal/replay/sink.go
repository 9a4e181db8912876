// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package replay

import (
	"context"
	"io"

	"github.com/OpenPSG/eyemat"
	"github.com/OpenPSG/eyemat/internal/store"
)

// Sink receives replayed events in order. Flush is called once, after the
// last event.
type Sink interface {
	Emit(ctx context.Context, ev eyemat.Event) error
	Flush(ctx context.Context) error
}

// LineSink writes every event as one raycast line.
type LineSink struct {
	w         *eyemat.RaycastWriter
	delimiter string
}

// NewLineSink creates a LineSink writing to w. An empty delimiter means
// eyemat.DefaultDelimiter.
func NewLineSink(w io.Writer, delimiter string) *LineSink {
	return &LineSink{w: eyemat.NewRaycastWriter(w), delimiter: delimiter}
}

func (s *LineSink) Emit(_ context.Context, ev eyemat.Event) error {
	d := eyemat.RaycastData{}.WithType(ev.Type()).WithDelimiter(s.delimiter)

	switch ev := ev.(type) {
	case eyemat.Sample:
		d = d.WithTime(ev.Timestamp).WithRawGaze(eyemat.Vec2{X: ev.GazeX, Y: ev.GazeY})
	case eyemat.Message:
		d = d.WithTime(ev.Timestamp).WithObjName(ev.Text)
	}

	return s.w.Write(d)
}

func (s *LineSink) Flush(context.Context) error {
	return s.w.Close()
}

// Lines returns the number of lines written so far.
func (s *LineSink) Lines() int {
	return s.w.Lines()
}

// DefaultBatchSize is the number of events a StoreSink inserts per transaction.
const DefaultBatchSize = 500

// StoreSink persists events to the event store under one session id.
type StoreSink struct {
	db        *store.DB
	sessionID string
	batchSize int
	seq       int
	pending   []eyemat.Event
}

// NewStoreSink creates a StoreSink. The session must already exist.
func NewStoreSink(db *store.DB, sessionID string, batchSize int) *StoreSink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &StoreSink{
		db:        db,
		sessionID: sessionID,
		batchSize: batchSize,
		pending:   make([]eyemat.Event, 0, batchSize),
	}
}

func (s *StoreSink) Emit(ctx context.Context, ev eyemat.Event) error {
	s.pending = append(s.pending, ev)
	if len(s.pending) < s.batchSize {
		return nil
	}
	return s.insert(ctx)
}

func (s *StoreSink) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	return s.insert(ctx)
}

func (s *StoreSink) insert(ctx context.Context) error {
	if err := s.db.InsertEvents(ctx, s.sessionID, s.seq, s.pending); err != nil {
		return err
	}
	s.seq += len(s.pending)
	s.pending = s.pending[:0]
	return nil
}
