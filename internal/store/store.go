// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package store persists replayed events to a sqlite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/OpenPSG/eyemat"
	_ "modernc.org/sqlite"
)

// startedAtFormat is fixed width so that stored times sort as text.
const startedAtFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrSessionNotFound is returned when a session id is not in the store.
var ErrSessionNotFound = errors.New("session not found")

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id        TEXT PRIMARY KEY,
		recording         TEXT NOT NULL,
		started_at        TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events (
		session_id        TEXT NOT NULL,
		seq               INTEGER NOT NULL,
		kind              TEXT NOT NULL,
		timestamp         INTEGER NOT NULL,
		gaze_x            DOUBLE,
		gaze_y            DOUBLE,
		message           TEXT,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);
`

// DB is a sqlite store of replay sessions and their events.
type DB struct {
	*sql.DB
}

// Open opens the database at path, creating the schema if needed.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

// CreateSession records the start of a replay.
func (db *DB) CreateSession(ctx context.Context, sessionID, recording string, startedAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, recording, started_at) VALUES (?, ?, ?)`,
		sessionID, recording, startedAt.UTC().Format(startedAtFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}
	return nil
}

// InsertEvents stores events in one transaction, numbering them from
// firstSeq. Gaze columns are NULL for messages and for samples where the
// eye was lost.
func (db *DB) InsertEvents(ctx context.Context, sessionID string, firstSeq int, events []eyemat.Event) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			session_id, seq, kind, timestamp, gaze_x, gaze_y, message
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ev := range events {
		var (
			timestamp    uint32
			gazeX, gazeY sql.NullFloat64
			message      sql.NullString
		)
		switch ev := ev.(type) {
		case eyemat.Sample:
			timestamp = ev.Timestamp
			gazeX = nullFloat(ev.GazeX)
			gazeY = nullFloat(ev.GazeY)
		case eyemat.Message:
			timestamp = ev.Timestamp
			message = sql.NullString{String: ev.Text, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			sessionID, firstSeq+i, ev.Type().String(), int64(timestamp), gazeX, gazeY, message,
		); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", firstSeq+i, err)
		}
	}

	return tx.Commit()
}

// Row is one stored event.
type Row struct {
	Seq       int
	Kind      string
	Timestamp uint32
	GazeX     float64 // NaN when NULL
	GazeY     float64 // NaN when NULL
	Message   string
}

// Events returns the stored events of a session in replay order.
func (db *DB) Events(ctx context.Context, sessionID string) ([]Row, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, kind, timestamp, gaze_x, gaze_y, message
		FROM events
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r            Row
			timestamp    int64
			gazeX, gazeY sql.NullFloat64
			message      sql.NullString
		)
		if err := rows.Scan(&r.Seq, &r.Kind, &timestamp, &gazeX, &gazeY, &message); err != nil {
			return nil, err
		}
		r.Timestamp = uint32(timestamp)
		r.GazeX = floatOrNaN(gazeX)
		r.GazeY = floatOrNaN(gazeY)
		r.Message = message.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionIDs returns the ids of all stored sessions, oldest first.
func (db *DB) SessionIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY started_at, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Summary describes one stored session.
type Summary struct {
	SessionID string
	Recording string
	StartedAt time.Time
	Counts    map[string]int // Events per kind
	Span      eyemat.Interval
}

// Summary returns the summary of a stored session.
func (db *DB) Summary(ctx context.Context, sessionID string) (*Summary, error) {
	s := &Summary{SessionID: sessionID, Counts: map[string]int{}}

	var startedAt string
	err := db.QueryRowContext(ctx,
		`SELECT recording, started_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&s.Recording, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if s.StartedAt, err = time.Parse(startedAtFormat, startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at for session %s: %w", sessionID, err)
	}

	var first, last sql.NullInt64
	if err := db.QueryRowContext(ctx,
		`SELECT MIN(timestamp), MAX(timestamp) FROM events WHERE session_id = ?`, sessionID,
	).Scan(&first, &last); err != nil {
		return nil, err
	}
	s.Span = eyemat.Interval{Start: uint32(first.Int64), End: uint32(last.Int64)}

	rows, err := db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM events WHERE session_id = ? GROUP BY kind`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		s.Counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

func nullFloat(f float32) sql.NullFloat64 {
	if math.IsNaN(float64(f)) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: float64(f), Valid: true}
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}
