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
	"testing"

	"github.com/OpenPSG/eyemat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	iv, err := eyemat.NewInterval(10, 20)
	require.NoError(t, err)

	assert.True(t, iv.Contains(10))
	assert.True(t, iv.Contains(15))
	assert.True(t, iv.Contains(20))
	assert.False(t, iv.Contains(9))
	assert.False(t, iv.Contains(21))

	point, err := eyemat.NewInterval(5, 5)
	require.NoError(t, err)
	assert.True(t, point.Contains(5))

	_, err = eyemat.NewInterval(21, 20)
	require.Error(t, err)
}

func TestDataTypeString(t *testing.T) {
	assert.Equal(t, "SAMPLE_TYPE", eyemat.SampleType.String())
	assert.Equal(t, "SAMPLESTARTFIX", eyemat.SampleStartFix.String())
	assert.Equal(t, "SAMPLEENDFIX", eyemat.SampleEndFix.String())
	assert.Equal(t, "MESSAGEEVENT", eyemat.MessageEvent.String())
	assert.Equal(t, "NO_PENDING_ITEMS", eyemat.NoPendingItems.String())
	assert.Equal(t, "DataType(9)", eyemat.DataType(9).String())
}

func TestEventTypes(t *testing.T) {
	assert.Equal(t, eyemat.MessageEvent, eyemat.Message{}.Type())
	assert.Equal(t, eyemat.SampleEndFix, eyemat.Sample{Kind: eyemat.SampleEndFix}.Type())
	assert.Equal(t, eyemat.NoPendingItems, eyemat.EndOfStream{}.Type())
}
