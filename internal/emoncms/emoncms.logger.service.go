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

package emoncms

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"ntcpanel/internal/config"
	"ntcpanel/internal/display"
	"ntcpanel/pkg/logger"
	"ntcpanel/pkg/service"
)

const node = "ntcpanel"

// Source supplies the displayed temperatures, usually a *display.Display.
type Source interface {
	Latest() []display.Reading
}

type loggerService struct {
	addr     string
	apiKey   string
	interval time.Duration
	log      *logger.Logger
	client   *http.Client
	src      Source
	valid    *plausibility
	now      func() time.Time
}

func New(src Source, appConfig *config.Config) service.Runnable {
	return &loggerService{
		addr:     appConfig.DataLogger.EmonCMSAddr,
		apiKey:   appConfig.DataLogger.EmonCMSApiKey,
		interval: time.Duration(appConfig.DataLogger.IntervalSeconds) * time.Second,
		log:      logger.New("DataLogger"),
		client:   &http.Client{Timeout: 10 * time.Second},
		src:      src,
		valid:    newPlausibility(),
		now:      time.Now,
	}
}

func (c *loggerService) emoncmsInputPost(ctx context.Context, data map[string]float64) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	query := url.Values{}
	query.Set("node", node)
	query.Set("apikey", c.apiKey)
	query.Set("fulljson", string(bytes))
	request := c.addr + "/input/post?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http.Get: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emoncms: %s", resp.Status)
	}
	return nil
}

// readings maps the channels with a value to t1..t6, rounded to 0.01.
func readings(latest []display.Reading) map[string]float64 {
	result := make(map[string]float64)
	for _, r := range latest {
		if !r.Valid {
			continue
		}
		result[fmt.Sprintf("t%d", r.Channel+1)] = math.Round(float64(r.Celsius)*100) / 100
	}
	return result
}

func (c *loggerService) tick(ctx context.Context) {
	data := readings(c.src.Latest())
	c.valid.filter(data, c.now(), func(key string, err error) {
		c.log.Warn("skipping %s: %v", key, err)
	})
	if len(data) == 0 {
		c.log.Debug("no readings yet")
		return
	}
	if err := c.emoncmsInputPost(ctx, data); err != nil {
		c.log.Error("emoncmsInputPost: %v", err)
	}
}

func (c *loggerService) Run(ctx context.Context) {
	if c.addr == "" {
		c.log.Info("Disabled, no emoncms_addr")
		return
	}
	c.log.Info("Running...")
	defer c.log.Info("Stopped.")

	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.tick(ctx)
		}
	}
}
