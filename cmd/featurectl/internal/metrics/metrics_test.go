// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyPathIsNop(t *testing.T) {
	r := New("")
	assert.IsType(t, Nop{}, r)
	r.SetGroups(3)
	r.Observe("deploy", time.Now(), nil)
	assert.NoError(t, r.Flush())
}

func TestTextfile_Flush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "featurectl.prom")
	end := time.Unix(1_700_000_030, 0)
	r := NewTextfile(path, func() time.Time { return end })

	r.SetGroups(3)
	r.Observe("deploy", end.Add(-30*time.Second), nil)
	r.Observe("remove", end.Add(-2*time.Second), errors.New("compose down failed"))
	require.NoError(t, r.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "featurectl_feature_groups 3")
	assert.Contains(t, out, `featurectl_last_operation_success{operation="deploy"} 1`)
	assert.Contains(t, out, `featurectl_last_operation_success{operation="remove"} 0`)
	assert.Contains(t, out, `featurectl_last_operation_duration_seconds{operation="deploy"} 30`)
	assert.Contains(t, out, `featurectl_last_operation_timestamp_seconds{operation="remove"}`)
}

func TestTextfile_LastRunWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "featurectl.prom")
	now := time.Unix(100, 0)
	r := NewTextfile(path, func() time.Time { return now })

	r.Observe("deploy", now, errors.New("boom"))
	r.Observe("deploy", now, nil)
	require.NoError(t, r.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `featurectl_last_operation_success{operation="deploy"} 1`)
	assert.NotContains(t, string(data), `featurectl_last_operation_success{operation="deploy"} 0`)
}
