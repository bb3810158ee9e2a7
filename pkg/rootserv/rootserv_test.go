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

package rootserv

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoPath() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "path="+r.URL.Path)
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSubserversSeeStrippedPaths(t *testing.T) {
	rs := New(":0")
	rs.Attach("/display", "LCD mirror", echoPath())
	rs.Attach("logger/", "Logger", echoPath())
	h := rs.Handler()

	assert.Equal(t, "path=/frame", get(t, h, "/display/frame").Body.String())
	assert.Equal(t, "path=/", get(t, h, "/logger/").Body.String())

	rec := get(t, h, "/display")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/display/", rec.Header().Get("Location"))
}

func TestIndexListsSubservers(t *testing.T) {
	rs := New(":0")
	rs.Attach("/monitor", "System <Monitor>", echoPath())
	h := rs.Handler()

	body := get(t, h, "/index").Body.String()
	assert.Contains(t, body, `<a href="/monitor/">/monitor</a>`)
	assert.Contains(t, body, "System &lt;Monitor&gt;")

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/index", rec.Header().Get("Location"))
}

func TestMainPage(t *testing.T) {
	rs := New(":0")
	rs.Attach("/", "home", echoPath())
	assert.Equal(t, "path=/anything", get(t, rs.Handler(), "/anything").Body.String())
}

func TestRunServesUntilCanceled(t *testing.T) {
	rs := New("127.0.0.1:0")
	rs.Attach("/display", "LCD mirror", echoPath())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rs.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return rs.Addr() != nil }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + rs.Addr().String() + "/display/x")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "path=/x", string(body))

	cancel()
	select {
	case <-done:
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not stop")
	}
}
