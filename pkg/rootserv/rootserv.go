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
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ntcpanel/pkg/logger"
)

// RootServer holds a mux and the list of attached sub-handlers.
type RootServer struct {
	log        *logger.Logger
	addr       string
	mux        *http.ServeMux
	subservers map[string]string // path -> description
	mainPage   http.Handler      // optional subserver for '/'
	once       sync.Once

	mu       sync.Mutex
	listener net.Addr
}

// New creates a new RootServer bound to an address.
func New(addr string) *RootServer {
	return &RootServer{
		addr:       addr,
		mux:        http.NewServeMux(),
		subservers: make(map[string]string),
		log:        logger.New("HTTPServer"),
	}
}

// Attach registers a new subserver under a path.
// If path == "/", it becomes the main page.
func (ms *RootServer) Attach(path, desc string, handler http.Handler) {
	ms.log.Info("Attach: %s", path)

	if path == "/" {
		ms.mainPage = handler
		return
	}

	// ServeMux subtree matching needs a trailing slash
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimRight(path, "/")
	ms.subservers[path] = desc

	// subservers see clean URLs
	ms.mux.Handle(path+"/", http.StripPrefix(path, handler))
	ms.mux.Handle(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently))
}

// handleIndex generates the HTML index page listing all subservers.
func (ms *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	fmt.Fprintln(w, "<!DOCTYPE html><html><head><title>NTC Panel</title></head><body>")
	fmt.Fprintln(w, "<h1>NTC Panel</h1><ul>")

	paths := make([]string, 0, len(ms.subservers))
	for path := range ms.subservers {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		desc := html.EscapeString(ms.subservers[path])
		fmt.Fprintf(w, `<li><a href="%s/">%s</a> - %s</li>`, path, path, desc)
	}

	fmt.Fprintln(w, "</ul></body></html>")
}

// Handler finishes the routes and returns the mux.
func (ms *RootServer) Handler() http.Handler {
	ms.once.Do(func() {
		ms.mux.HandleFunc("/index", ms.handleIndex)
		ms.mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		ms.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if ms.mainPage != nil {
				ms.mainPage.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, "/index", http.StatusTemporaryRedirect)
		})
	})
	return ms.mux
}

// Addr returns the bound address once Run is listening.
func (ms *RootServer) Addr() net.Addr {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.listener
}

// Run starts serving and blocks until the context is canceled.
func (ms *RootServer) Run(ctx context.Context) {
	ms.log.Info("Running...")

	srv := &http.Server{
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", ms.addr)
	if err != nil {
		ms.log.Error("Stopped: %v", err)
		return
	}
	ms.mu.Lock()
	ms.listener = ln.Addr()
	ms.mu.Unlock()
	ms.log.Info("Listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		ms.log.Info("Stopped")
	case err := <-errCh:
		ms.log.Error("Stopped: %T %+v", err, err)
	}
}
