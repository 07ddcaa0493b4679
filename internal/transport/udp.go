// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	applog "tinnitus/internal/log"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Payload Length    | uint16         | 2            | Number of bytes (N)     |
| Payload           | []byte         | N            | Event as JSON           |
+-----------------------------------------------------------------------------+
*/

// UDPHeaderSize is the fixed part of every packet.
const UDPHeaderSize = 4 + 8 + 2

// UDPPublisher sends every event as one datagram to a fixed target.
type UDPPublisher struct {
	conn   *net.UDPConn
	mu     sync.Mutex // Protects conn, closed, sequenceNum and packetBuffer.
	closed bool

	sequenceNum  uint32
	packetBuffer bytes.Buffer
}

// NewUDPPublisher creates a UDPPublisher targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewUDPPublisher(targetAddress string) (*UDPPublisher, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No local port is needed for sending.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	applog.Infof("UDPPublisher: Sending events to %s", conn.RemoteAddr())
	return &UDPPublisher{conn: conn}, nil
}

// Publish packs ev and sends it. Safe for concurrent use.
func (p *UDPPublisher) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("UDPPublisher: failed to marshal event: %w", err)
	}
	if len(payload) > math.MaxUint16 {
		return fmt.Errorf("UDPPublisher: event too large (%d bytes)", len(payload))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("UDPPublisher: publisher is closed")
	}

	p.sequenceNum++
	p.packetBuffer.Reset()
	writePacketHeader(&p.packetBuffer, p.sequenceNum, time.Now().UnixNano(), uint16(len(payload)))
	p.packetBuffer.Write(payload)

	if _, err := p.conn.Write(p.packetBuffer.Bytes()); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	return nil
}

// Close closes the underlying UDP connection.
func (p *UDPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

func writePacketHeader(buf *bytes.Buffer, seq uint32, timestamp int64, length uint16) {
	var hdr [UDPHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], seq)
	binary.BigEndian.PutUint64(hdr[4:12], uint64(timestamp))
	binary.BigEndian.PutUint16(hdr[12:14], length)
	buf.Write(hdr[:])
}

// DecodeUDPPacket splits a packet produced by UDPPublisher.
func DecodeUDPPacket(packet []byte) (seq uint32, timestamp time.Time, ev Event, err error) {
	if len(packet) < UDPHeaderSize {
		return 0, time.Time{}, Event{}, fmt.Errorf("short UDP packet: %d bytes", len(packet))
	}
	seq = binary.BigEndian.Uint32(packet[0:4])
	timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(packet[4:12])))
	n := int(binary.BigEndian.Uint16(packet[12:14]))
	if len(packet)-UDPHeaderSize != n {
		return 0, time.Time{}, Event{}, fmt.Errorf("UDP payload length %d, header says %d", len(packet)-UDPHeaderSize, n)
	}
	if err := json.Unmarshal(packet[UDPHeaderSize:], &ev); err != nil {
		return 0, time.Time{}, Event{}, fmt.Errorf("invalid UDP payload: %w", err)
	}
	return seq, timestamp, ev, nil
}

// UDPReceiver reads the packets a UDPPublisher sends.
type UDPReceiver struct {
	conn    *net.UDPConn
	lastSeq uint32
}

// ListenUDP binds a UDPReceiver to address, e.g. "127.0.0.1:9090".
func ListenUDP(address string) (*UDPReceiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP listen address '%s': %w", address, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP '%s': %w", address, err)
	}
	applog.Infof("UDPReceiver: Listening on %s", conn.LocalAddr())
	return &UDPReceiver{conn: conn}, nil
}

// Addr returns the bound address.
func (r *UDPReceiver) Addr() string {
	return r.conn.LocalAddr().String()
}

// Receive calls handle for every valid packet until ctx ends, then returns
// nil. Malformed packets are dropped with a warning.
func (r *UDPReceiver) Receive(ctx context.Context, handle func(seq uint32, sent time.Time, ev Event)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, UDPHeaderSize+math.MaxUint16)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read UDP packet: %w", err)
		}

		seq, sent, ev, err := DecodeUDPPacket(buf[:n])
		if err != nil {
			applog.Warnf("UDPReceiver: Dropping packet from %s: %v", from, err)
			continue
		}
		// A restarted sender begins again at 1.
		if r.lastSeq != 0 && seq > r.lastSeq+1 {
			applog.Warnf("UDPReceiver: %d packets lost before %d", seq-r.lastSeq-1, seq)
		}
		r.lastSeq = seq
		handle(seq, sent, ev)
	}
}

// Close releases the socket.
func (r *UDPReceiver) Close() error {
	return r.conn.Close()
}

var _ Publisher = (*UDPPublisher)(nil)
