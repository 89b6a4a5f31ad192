// SPDX-License-Identifier: MIT
/*
Package udp sends telemetry snapshots as compact binary datagrams.
*/
package udp

import (
	"fmt"
	"net"
	"sync"

	"amplifier/internal/log"
	"amplifier/internal/telemetry"
	"amplifier/internal/transport"
)

var logger = log.New("udp")

// Sender transmits telemetry packets to one UDP peer.
type Sender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	mu         sync.Mutex // protects conn, enc and closed
	enc        Encoder
	closed     bool
}

// NewSender dials targetAddress, for example "127.0.0.1:9090".
func NewSender(targetAddress string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve UDP target %q: %w", targetAddress, err)
	}
	// No local bind needed for sending.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial UDP target %q: %w", targetAddress, err)
	}
	logger.Infof("sending telemetry to %s", conn.RemoteAddr())
	return &Sender{conn: conn, targetAddr: udpAddr}, nil
}

// Send accepts a telemetry.Snapshot (by value or pointer) or raw bytes.
func (s *Sender) Send(data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}

	var (
		packet []byte
		err    error
	)
	switch v := data.(type) {
	case telemetry.Snapshot:
		packet, err = s.enc.Encode(&v)
	case *telemetry.Snapshot:
		packet, err = s.enc.Encode(v)
	case []byte:
		packet = v
	default:
		return fmt.Errorf("udp: unsupported payload %T", data)
	}
	if err != nil {
		return fmt.Errorf("udp: encode: %w", err)
	}

	if _, err := s.conn.Write(packet); err != nil {
		return fmt.Errorf("udp: send: %w", err)
	}
	logger.Debugf("sent packet %d (%d bytes)", s.enc.seq, len(packet))
	return nil
}

// Close closes the connection. Further sends return transport.ErrClosed.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	logger.Infof("closing connection to %s", s.targetAddr)
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("udp: close: %w", err)
	}
	return nil
}

var _ transport.Transport = (*Sender)(nil)
