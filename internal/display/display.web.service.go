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

package display

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"ntcpanel/pkg/logger"
)

type frameMessage struct {
	Lines []string `json:"lines"`
}

type clientSync struct {
	clients map[*websocket.Conn]bool
	mutex   sync.Mutex
}

func (c *clientSync) broadcast(pm *websocket.PreparedMessage, log *logger.Logger) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			log.Debug("dropping client: %v", err)
			ws.Close()
			delete(c.clients, ws)
		}
	}
}

func (c *clientSync) add(ws *websocket.Conn) {
	c.mutex.Lock()
	c.clients[ws] = true
	c.mutex.Unlock()
}

func (c *clientSync) remove(ws *websocket.Conn) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSync) count() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.clients)
}

// WebRenderer mirrors the display to browsers over a websocket.
type WebRenderer struct {
	log     *logger.Logger
	clients clientSync

	mu   sync.Mutex
	last []string
}

func NewWebRenderer() *WebRenderer {
	return &WebRenderer{
		log:     logger.New("DisplayWeb"),
		clients: clientSync{clients: make(map[*websocket.Conn]bool)},
	}
}

// Render broadcasts lines when they differ from the previous frame.
func (wr *WebRenderer) Render(lines []string) error {
	wr.mu.Lock()
	if slices.Equal(wr.last, lines) {
		wr.mu.Unlock()
		return nil
	}
	wr.last = slices.Clone(lines)
	wr.mu.Unlock()

	if wr.clients.count() == 0 {
		return nil
	}
	pm, err := prepare(lines)
	if err != nil {
		return err
	}
	wr.clients.broadcast(pm, wr.log)
	return nil
}

func prepare(lines []string) (*websocket.PreparedMessage, error) {
	data, err := json.Marshal(frameMessage{Lines: lines})
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, data)
}

func (wr *WebRenderer) lastFrame() []string {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return slices.Clone(wr.last)
}

func (wr *WebRenderer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", wr.servePage)
	mux.HandleFunc("/frame", wr.serveFrame)
	mux.HandleFunc("/ws", wr.serveWebSocket)
	return mux
}

func (wr *WebRenderer) servePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(pageHTML))
}

func (wr *WebRenderer) serveFrame(w http.ResponseWriter, r *http.Request) {
	lines := wr.lastFrame()
	if lines == nil {
		lines = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(frameMessage{Lines: lines})
}

func (wr *WebRenderer) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wr.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	defer ws.Close()

	if lines := wr.lastFrame(); lines != nil {
		if err := ws.WriteJSON(frameMessage{Lines: lines}); err != nil {
			return
		}
	}
	wr.clients.add(ws)
	defer wr.clients.remove(ws)

	// the mirror is read-only; reading detects the close
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wr.log.Debug("ws read: %v", err)
			}
			return
		}
	}
}

const pageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Display</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #222; color: #eee; }
pre#lcd { display: inline-block; font-size: 1.6em; padding: 0.6em; background: #2a5; color: #031; border: 6px solid #111; }
</style>
</head>
<body>
<h1>Display</h1>
<pre id="lcd"></pre>
<script>
const lcd = document.getElementById("lcd");
function show(m) { lcd.textContent = m.lines.join("\n"); }
fetch("frame").then(r => r.json()).then(show);
const proto = location.protocol === "https:" ? "wss://" : "ws://";
const ws = new WebSocket(proto + location.host + location.pathname.replace(/\/?$/, "/") + "ws");
ws.onmessage = e => show(JSON.parse(e.data));
</script>
</body>
</html>
`
