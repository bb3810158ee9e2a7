// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

//go:build linux

package sysmon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()
	d, err := diskUsage(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, d.Path)
	assert.Positive(t, d.Total)
	assert.LessOrEqual(t, d.Used, d.Total)
	assert.LessOrEqual(t, d.Free, d.Total-d.Used)
}

func TestDiskUsageMissingPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	d, err := diskUsage(missing)
	assert.ErrorContains(t, err, "statfs "+missing)
	assert.Equal(t, missing, d.Path)
	assert.Zero(t, d.Total)
}
