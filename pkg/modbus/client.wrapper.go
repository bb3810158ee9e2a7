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

package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	wrapper "github.com/grid-x/modbus"

	"ntcpanel/pkg/logger"
)

const maxBackoff = 30 * time.Second

type Client struct {
	mu      sync.Mutex
	handler *wrapper.TCPClientHandler
	client  wrapper.Client
	config  *Config
	log     *logger.Logger
}

// Dial connects a Modbus TCP client, retrying with exponential backoff
// until it succeeds or ctx is done.
func Dial(ctx context.Context, config *Config) (*Client, error) {
	c := &Client{
		config: config,
		log:    logger.New("ModbusConn"),
	}
	if err := c.connectWithRetry(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.connect(ctx)
		if err == nil {
			return nil
		}
		c.log.Error("Modbus connect failed: %v (retrying in %v)", err, backoff)
		select {
		case <-ctx.Done():
			return fmt.Errorf("modbus connect: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// connect (re)connects the client once.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler != nil {
		_ = c.handler.Close()
	}

	url := fmt.Sprintf("%s:%d", c.config.Modbus.Host, c.config.Modbus.Port)
	handler := wrapper.NewTCPClientHandler(url)
	handler.SlaveID = c.config.Modbus.SlaveID
	handler.Timeout = time.Second * time.Duration(c.config.Modbus.Timeout)
	handler.ProtocolRecoveryTimeout = 250 * time.Millisecond
	handler.LinkRecoveryTimeout = 5 * time.Second

	c.log.Info("Connecting to %s...", url)
	if err := handler.Connect(ctx); err != nil {
		return fmt.Errorf("modbus connect failed: %w", err)
	}

	c.handler = handler
	c.client = wrapper.NewClient(handler)
	c.log.Info("Connected to %s", url)
	return nil
}

// retry runs op, reconnecting once on a connection error.
func (c *Client) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isConnError(err) {
		return err
	}
	c.log.Error("connection error: %v, reconnecting...", err)
	if cerr := c.connectWithRetry(ctx); cerr != nil {
		return cerr
	}
	return op()
}

// ReadRegisters reads quantity registers of the given type ("input" or
// "holding") starting at addr.
func (c *Client) ReadRegisters(ctx context.Context, regType string, addr, quantity uint16) ([]byte, error) {
	var data []byte
	err := c.retry(ctx, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		var rerr error
		switch regType {
		case "holding":
			data, rerr = c.client.ReadHoldingRegisters(ctx, addr, quantity)
		default:
			data, rerr = c.client.ReadInputRegisters(ctx, addr, quantity)
		}
		return rerr
	})
	return data, err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return c.handler.Close()
	}
	return nil
}

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed by the remote host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused")
}
