// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package eyemat_test

import (
	"bytes"
	"testing"

	"github.com/OpenPSG/eyemat"
	"github.com/stretchr/testify/require"
)

func encodeSession(t *testing.T, s eyemat.Session) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, eyemat.WriteSession(&buf, eyemat.Header{}, s))
	return buf.Bytes()
}

func loadSession(t *testing.T, s eyemat.Session) *eyemat.Recording {
	t.Helper()

	rec, err := eyemat.ReadRecording(bytes.NewReader(encodeSession(t, s)))
	require.NoError(t, err)
	return rec
}

func encodeVariables(t *testing.T, vars ...*eyemat.Variable) []byte {
	t.Helper()

	var buf bytes.Buffer
	mw, err := eyemat.Create(&buf, eyemat.Header{})
	require.NoError(t, err)
	for _, v := range vars {
		require.NoError(t, mw.WriteVariable(v))
	}
	require.NoError(t, mw.Close())
	return buf.Bytes()
}

// replay pulls events until EndOfStream or an error.
func replay(t *testing.T, r *eyemat.Reader) []eyemat.Event {
	t.Helper()

	var events []eyemat.Event
	for i := 0; i < 100000; i++ {
		ev, err := r.Next()
		require.NoError(t, err)
		events = append(events, ev)
		if _, ok := ev.(eyemat.EndOfStream); ok {
			return events
		}
	}
	t.Fatal("replay did not reach the end of the stream")
	return nil
}

func sequence(first uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = first + uint32(i)
	}
	return out
}

func gaze(n int, offset float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = offset + float32(i)/4
	}
	return out
}
