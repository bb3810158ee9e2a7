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

package network

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ntcpanel/pkg/kvstore"
	"ntcpanel/pkg/logger"
)

// Settings is the persistent store the portal writes credentials to.
type Settings interface {
	String(key, def string) string
	Int32(key string, def int32) int32
	SetString(key, value string) error
	SetInt32(key string, value int32) error
}

// ValidChannel returns channel when it is a 2.4 GHz channel (1 to 13),
// else 1.
func ValidChannel(channel int) int32 {
	if channel < 1 || channel > 13 {
		return 1
	}
	return int32(channel)
}

// Portal is the captive configuration web server.
type Portal struct {
	addr     string
	home     string
	settings Settings
	log      *logger.Logger
	srv      *http.Server
	ln       net.Listener
}

func NewPortal(addr, homeURL string, settings Settings) *Portal {
	p := &Portal{
		addr:     addr,
		home:     homeURL,
		settings: settings,
		log:      logger.New("CaptivePortal"),
	}
	p.srv = &http.Server{
		Handler:           p.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return p
}

func (p *Portal) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", p.serveForm)
	mux.HandleFunc("POST /configure", p.serveConfigure)
	mux.HandleFunc("GET /generate_204", p.serveCheck)
	mux.HandleFunc("GET /hotspot-detect.html", p.serveCheck)
	mux.HandleFunc("GET /", p.serveRedirect)
	return mux
}

func (p *Portal) Listen() error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("captive portal listen %s: %w", p.addr, err)
	}
	p.ln = ln
	return nil
}

func (p *Portal) Addr() net.Addr {
	return p.ln.Addr()
}

// Serve runs until ctx is done.
func (p *Portal) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		p.log.Info("HTTP portal listening on %s", p.ln.Addr())
		errCh <- p.srv.Serve(p.ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.srv.Shutdown(shutdownCtx); err != nil {
			p.log.Error("shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

var formTemplate = template.Must(template.New("portal").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>NTC Panel setup</title>
<style>
body { font-family: sans-serif; max-width: 24em; margin: 2em auto; }
label { display: block; margin-top: 1em; }
input { width: 100%; }
</style>
</head>
<body>
<h1>NTC Panel setup</h1>
<form method="post" action="/configure">
<h2>WiFi network</h2>
<label>SSID <input name="ssid" value="{{.STASSID}}"></label>
<label>Password <input name="password" type="password"></label>
<h2>Setup access point</h2>
<label>SSID <input name="ap_ssid" value="{{.APSSID}}"></label>
<label>Password <input name="ap_pass" type="password"></label>
<label>Channel <input name="ap_channel" type="number" min="1" max="13" value="{{.APChannel}}"></label>
<p><button type="submit">Save</button></p>
</form>
<p>Hold the button for 3 seconds to leave setup mode.</p>
</body>
</html>
`))

func (p *Portal) serveForm(w http.ResponseWriter, r *http.Request) {
	data := struct {
		STASSID   string
		APSSID    string
		APChannel int32
	}{
		STASSID:   p.settings.String(kvstore.KeySTASSID, ""),
		APSSID:    p.settings.String(kvstore.KeyAPSSID, ""),
		APChannel: p.settings.Int32(kvstore.KeyAPChannel, 1),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := formTemplate.Execute(w, data); err != nil {
		p.log.Error("render form: %v", err)
	}
}

func (p *Portal) serveConfigure(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	ssid := strings.TrimSpace(r.PostForm.Get("ssid"))
	if ssid == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}
	if err := p.store(r, ssid); err != nil {
		p.log.Error("store configuration: %v", err)
		http.Error(w, "failed to store configuration", http.StatusInternalServerError)
		return
	}
	p.log.Info("Received configuration for %q, hold the button to apply", ssid)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Configuration received"))
}

func (p *Portal) store(r *http.Request, ssid string) error {
	if err := p.settings.SetString(kvstore.KeySTASSID, ssid); err != nil {
		return err
	}
	if err := p.settings.SetString(kvstore.KeySTAPass, r.PostForm.Get("password")); err != nil {
		return err
	}
	if ap := strings.TrimSpace(r.PostForm.Get("ap_ssid")); ap != "" {
		if err := p.settings.SetString(kvstore.KeyAPSSID, ap); err != nil {
			return err
		}
	}
	if r.PostForm.Has("ap_pass") {
		if err := p.settings.SetString(kvstore.KeyAPPass, r.PostForm.Get("ap_pass")); err != nil {
			return err
		}
	}
	if v := r.PostForm.Get("ap_channel"); v != "" {
		ch, err := strconv.Atoi(v)
		if err != nil {
			ch = 0
		}
		if err := p.settings.SetInt32(kvstore.KeyAPChannel, ValidChannel(ch)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Portal) serveCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("<html><head><title>Captive Portal</title></head><body>Redirecting...</body></html>"))
}

func (p *Portal) serveRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, p.home, http.StatusFound)
}
