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

package button

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntcpanel/pkg/gpio"
)

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(body)))
	return rec
}

func TestWebCommandsDriveVirtualLine(t *testing.T) {
	line := gpio.NewSimLine()
	m := New(line, &fakePub{}, DefaultConfig())
	h := m.WebService(line)

	rec := post(t, h, `{"command":"press"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, line.Asserted())

	var st webState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Asserted)
	assert.True(t, st.Virtual)

	post(t, h, `{"command":"release"}`)
	assert.False(t, line.Asserted())

	assert.Equal(t, http.StatusBadRequest, post(t, h, `{"command":"twist"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, `not json`).Code)
}

func TestWebRefusesCommandsOnHardware(t *testing.T) {
	line := gpio.NewSimLine()
	m := New(line, &fakePub{}, DefaultConfig())
	h := m.WebService(nil)

	assert.Equal(t, http.StatusConflict, post(t, h, `{"command":"press"}`).Code)
	assert.False(t, line.Asserted())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	var st webState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "idle", st.State)
	assert.False(t, st.Virtual)
}
