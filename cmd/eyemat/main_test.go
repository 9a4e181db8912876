// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenPSG/eyemat"
	"github.com/OpenPSG/eyemat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const wantLines = `MESSAGEEVENT,100,Start Trial 10
SAMPLE_TYPE,100,1,-1
SAMPLESTARTFIX,101,2,-2
MESSAGEEVENT,102,Cue Offset 20
SAMPLEENDFIX,102,3,-3
MESSAGEEVENT,103,Trigger Version 82
SAMPLE_TYPE,103,4,-4
`

func writeRecording(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "session.mat")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, eyemat.WriteSession(f, eyemat.Header{Compressed: true}, eyemat.Session{
		Timestamps:     []uint32{100, 101, 102, 103},
		GazeX:          []float32{1, 2, 3, 4},
		GazeY:          []float32{-1, -2, -3, -4},
		TrialIndex:     [][3]int{{1, 3, 4}},
		TrialCodes:     [][3]int{{10, 20, 80}},
		FixationStarts: []uint32{101},
		FixationEnds:   []uint32{102},
	}))
	return path
}

func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	err = app.Run(append([]string{"eyemat"}, args...))
	return out.String(), errOut.String(), err
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()

	var exitCoder cli.ExitCoder
	require.True(t, errors.As(err, &exitCoder), "expected an exit error, got %v", err)
	assert.Equal(t, code, exitCoder.ExitCode())
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	path := writeRecording(t, dir)
	dbPath := filepath.Join(dir, "events.db")

	stdout, stderr, err := runApp(t, "replay",
		"--fade-out", "1",
		"--version-num", "2",
		"--db", dbPath,
		path,
	)
	require.NoError(t, err)
	assert.Equal(t, wantLines, stdout)
	assert.Contains(t, stderr, `"message":"replay finished"`)

	db, err := store.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	ids, err := db.SessionIDs(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Contains(t, stderr, ids[0])

	rows, err := db.Events(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Len(t, rows, 7)
}

func TestReplayConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeRecording(t, dir)
	outPath := filepath.Join(dir, "raycast.csv")

	t.Setenv("EYEMAT_TEST_RECORDING", path)
	cfgPath := filepath.Join(dir, "eyemat.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`recording: ${EYEMAT_TEST_RECORDING}
experiment_version: 2
fade_out: 1
output:
  path: `+outPath+`
  delimiter: ";"
log:
  level: error
`), 0o644))

	stdout, stderr, err := runApp(t, "replay", "--config", cfgPath)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, strings.ReplaceAll(wantLines, ",", ";"), string(data))

	// Flags override the file.
	stdout, _, err = runApp(t, "replay", "--config", cfgPath, "--out", "", "--delimiter", ",")
	require.NoError(t, err)
	assert.Equal(t, wantLines, stdout)
}

func TestReplayErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeRecording(t, dir)

	tests := []struct {
		name string
		args []string
	}{
		{name: "No recording", args: []string{"replay"}},
		{name: "Missing recording", args: []string{"replay", filepath.Join(dir, "missing.mat")}},
		{name: "Negative fade out", args: []string{"replay", "--fade-out", "-1", path}},
		{name: "Invalid log level", args: []string{"replay", "--log-level", "loud", path}},
		{name: "Missing config", args: []string{"replay", "--config", filepath.Join(dir, "missing.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runApp(t, tt.args...)
			requireExitCode(t, err, 1)
		})
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeRecording(t, dir)

	stdout, _, err := runApp(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "compressed: true\n")
	assert.Contains(t, stdout, "samples:    4\n")
	assert.Contains(t, stdout, "trials:     1\n")
	assert.Contains(t, stdout, "fixations:  1\n")
	assert.Contains(t, stdout, "span:       100..103\n")

	_, _, err = runApp(t, "inspect")
	requireExitCode(t, err, 1)
}

func TestInspectStore(t *testing.T) {
	dir := t.TempDir()
	path := writeRecording(t, dir)
	dbPath := filepath.Join(dir, "events.db")

	_, _, err := runApp(t, "replay", "--fade-out", "1", "--db", dbPath, "--log-level", "error", path)
	require.NoError(t, err)

	stdout, _, err := runApp(t, "inspect", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "  recording: "+path+"\n")
	assert.Contains(t, stdout, "  span:      100..103\n")
	assert.Contains(t, stdout, "  MESSAGEEVENT     3\n")
	assert.Contains(t, stdout, "  SAMPLESTARTFIX   1\n")

	_, _, err = runApp(t, "inspect", "--db", dbPath, "--session", "missing")
	requireExitCode(t, err, 1)
}

func TestVersion(t *testing.T) {
	stdout, _, err := runApp(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "eyemat 0.1.0 (commit: unknown)\n", stdout)
}

func TestExitErrHandlerNilError(t *testing.T) {
	exitErrHandler(nil, nil)
}
