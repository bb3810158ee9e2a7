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

package sysmon

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"ntcpanel/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// disk is the usage of the filesystem holding Path, in bytes.
type disk struct {
	Path  string `json:"path"`
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// StatsFunc returns a JSON encodable snapshot of one component.
type StatsFunc func() any

type Service struct {
	log     *logger.Logger
	started time.Time
	dataDir string

	mu    sync.Mutex
	stats map[string]StatsFunc
}

// New reports disk usage for the filesystem holding dataDir, where the
// log and the device settings are written.
func New(dataDir string) *Service {
	return &Service{
		log:     logger.New("System Monitor"),
		started: time.Now(),
		dataDir: dataDir,
		stats:   make(map[string]StatsFunc),
	}
}

// Register adds a component whose counters are shown under "core".
func (s *Service) Register(name string, fn StatsFunc) {
	s.mu.Lock()
	s.stats[name] = fn
	s.mu.Unlock()
}

func (s *Service) core() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.stats))
	for name, fn := range s.stats {
		out[name] = fn()
	}
	return out
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// System-wide CPU and memory
	cpuPercentList, _ := cpu.Percent(0, false)
	cpuPercent := 0.0
	if len(cpuPercentList) > 0 {
		cpuPercent = cpuPercentList[0]
	}

	var memTotal, memUsed, memFree uint64
	if vmem, err := mem.VirtualMemory(); err == nil {
		memTotal, memUsed, memFree = vmem.Total, vmem.Used, vmem.Available
	}
	dsk, err := diskUsage(s.dataDir)
	if err != nil {
		s.log.Debug("disk: %v", err)
	}

	// Current process stats
	p, err := process.NewProcess(int32(os.Getpid()))
	var procMem uint64
	var procCPU float64
	if err == nil {
		if memInfo, err := p.MemoryInfo(); err == nil {
			procMem = memInfo.RSS // resident memory
		}
		if cpuPercent, err := p.CPUPercent(); err == nil {
			procCPU = cpuPercent
		}
	}

	core := s.core()
	metrics := map[string]any{
		"go_version": runtime.Version(),
		"uptime_s":   int64(time.Since(s.started).Seconds()),
		"goroutines": runtime.NumGoroutine(),
		"cpu": map[string]any{
			"system_percent":  cpuPercent,
			"process_percent": procCPU,
		},
		"memory": map[string]any{
			"system_total": memTotal,
			"system_used":  memUsed,
			"system_free":  memFree,
			"process_rss":  procMem,
		},
		"disk": dsk,
		"core": core,
	}

	// JSON API
	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(metrics); err != nil {
			s.log.Error("encode: %v", err)
		}
		return
	}

	// HTML dashboard
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<meta http-equiv="refresh" content="5">
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		h1 { color: #333; }
		table { border-collapse: collapse; width: 60%%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
		pre { margin: 0; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<h2>Go</h2>
	<p>Version: %s, goroutines: %d, uptime: %v</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %%</th><th>Process %%</th></tr>
		<tr><td>%.2f%%</td><td>%.2f%%</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr>
			<td>%.2f GB</td>
			<td>%.2f GB</td>
			<td>%.2f GB</td>
			<td>%.2f MB</td>
		</tr>
	</table>
	<h2>Disk (%s)</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr>
			<td>%.2f GB</td>
			<td>%.2f GB</td>
			<td>%.2f GB</td>
		</tr>
	</table>
	<h2>Core</h2>
	<table>
		<tr><th>Component</th><th>Counters</th></tr>
`,
		metrics["go_version"], metrics["goroutines"], time.Since(s.started).Truncate(time.Second),
		cpuPercent, procCPU,
		float64(memTotal)/(1024*1024*1024),
		float64(memUsed)/(1024*1024*1024),
		float64(memFree)/(1024*1024*1024),
		float64(procMem)/(1024*1024),
		html.EscapeString(dsk.Path),
		float64(dsk.Total)/(1024*1024*1024),
		float64(dsk.Used)/(1024*1024*1024),
		float64(dsk.Free)/(1024*1024*1024),
	)

	names := make([]string, 0, len(core))
	for name := range core {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := json.MarshalIndent(core[name], "", "  ")
		if err != nil {
			data = []byte(err.Error())
		}
		fmt.Fprintf(w, "\t\t<tr><td>%s</td><td><pre>%s</pre></td></tr>\n",
			html.EscapeString(name), html.EscapeString(string(data)))
	}
	fmt.Fprint(w, "\t</table>\n</body>\n</html>\n")
}
