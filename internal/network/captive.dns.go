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
	"net"
	"net/netip"

	"golang.org/x/net/dns/dnsmessage"

	"ntcpanel/pkg/logger"
)

const (
	dnsHeaderLen = 12
	dnsTTL       = 60
)

// DNSResponder answers every query with one A record pointing at the
// access point, so clients open the portal whatever name they look up.
type DNSResponder struct {
	addr   string
	answer [4]byte
	log    *logger.Logger
	conn   net.PacketConn
}

func NewDNSResponder(addr string, apAddr netip.Addr) *DNSResponder {
	return &DNSResponder{
		addr:   addr,
		answer: apAddr.As4(),
		log:    logger.New("CaptiveDNS"),
	}
}

// Listen binds the UDP socket.
func (d *DNSResponder) Listen() error {
	conn, err := net.ListenPacket("udp4", d.addr)
	if err != nil {
		return fmt.Errorf("captive dns listen %s: %w", d.addr, err)
	}
	d.conn = conn
	return nil
}

func (d *DNSResponder) Addr() net.Addr {
	return d.conn.LocalAddr()
}

// Serve answers queries until ctx is done or the socket is closed.
func (d *DNSResponder) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.conn.Close() })
	defer stop()

	d.log.Info("DNS server listening on %s", d.conn.LocalAddr())
	buf := make([]byte, 512)
	for {
		n, peer, err := d.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.log.Error("read: %v", err)
			continue
		}
		resp, err := d.respond(buf[:n])
		if err != nil {
			d.log.Warn("dropping query from %v: %v", peer, err)
			continue
		}
		if _, err := d.conn.WriteTo(resp, peer); err != nil {
			d.log.Warn("write to %v: %v", peer, err)
		}
	}
}

func (d *DNSResponder) Close() error {
	return d.conn.Close()
}

// respond builds the answer to one query packet.
func (d *DNSResponder) respond(query []byte) ([]byte, error) {
	if len(query) < dnsHeaderLen {
		return nil, fmt.Errorf("short packet (%d bytes)", len(query))
	}
	var p dnsmessage.Parser
	h, err := p.Start(query)
	if err != nil {
		return nil, err
	}
	if h.Response {
		return nil, fmt.Errorf("not a query")
	}
	q, err := p.Question()
	if err != nil {
		return nil, fmt.Errorf("question: %w", err)
	}

	msg := dnsmessage.Message{
		Header: dnsmessage.Header{
			ID:               h.ID,
			Response:         true,
			OpCode:           h.OpCode,
			Authoritative:    true,
			RecursionDesired: h.RecursionDesired,
		},
		Questions: []dnsmessage.Question{q},
		Answers: []dnsmessage.Resource{{
			Header: dnsmessage.ResourceHeader{
				Name:  q.Name,
				Type:  dnsmessage.TypeA,
				Class: dnsmessage.ClassINET,
				TTL:   dnsTTL,
			},
			Body: &dnsmessage.AResource{A: d.answer},
		}},
	}
	return msg.Pack()
}
