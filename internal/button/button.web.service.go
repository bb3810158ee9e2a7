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

	"ntcpanel/pkg/gpio"
)

type webRequest struct {
	Command string `json:"command"`
}

type webState struct {
	State    string `json:"state"`
	Asserted bool   `json:"asserted"`
	Virtual  bool   `json:"virtual"`
	Stats    Stats  `json:"stats"`
}

// WebService serves the monitor state and, when sim is not nil, lets a
// browser press and release the virtual button.
func (m *Monitor) WebService(sim *gpio.SimLine) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(buttonPage))
	})
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		m.writeState(w, sim)
	})
	mux.HandleFunc("POST /command", func(w http.ResponseWriter, r *http.Request) {
		if sim == nil {
			http.Error(w, "button is wired to hardware", http.StatusConflict)
			return
		}
		var req webRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch req.Command {
		case "press":
			sim.Set(true)
		case "release":
			sim.Set(false)
		default:
			http.Error(w, "unknown command", http.StatusBadRequest)
			return
		}
		m.log.Debug("virtual button: %s", req.Command)
		m.writeState(w, sim)
	})
	return mux
}

func (m *Monitor) writeState(w http.ResponseWriter, sim *gpio.SimLine) {
	st := webState{
		State:    m.State().String(),
		Asserted: m.line.Asserted(),
		Virtual:  sim != nil,
		Stats:    m.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		m.log.Error("encode state: %v", err)
	}
}

const buttonPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Button</title>
<style>
body { font-family: sans-serif; margin: 2em; }
button { font-size: 1.4em; padding: 1em 2em; }
pre { background: #eee; padding: 1em; }
</style>
</head>
<body>
<h1>Button</h1>
<p>Hold for 3 seconds for a long press.</p>
<button id="btn">Press</button>
<pre id="state"></pre>
<script>
const btn = document.getElementById("btn");
const out = document.getElementById("state");
const base = location.pathname.replace(/\/?$/, "/");
function show(s) { out.textContent = JSON.stringify(s, null, 2); btn.disabled = !s.virtual; }
function send(command) {
  fetch(base + "command", {method: "POST", body: JSON.stringify({command})})
    .then(r => r.json()).then(show).catch(() => {});
}
btn.addEventListener("pointerdown", () => send("press"));
btn.addEventListener("pointerup", () => send("release"));
btn.addEventListener("pointerleave", e => { if (e.buttons) send("release"); });
function poll() { fetch(base + "state").then(r => r.json()).then(show).catch(() => {}); }
poll();
setInterval(poll, 500);
</script>
</body>
</html>
`
