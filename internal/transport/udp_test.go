// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 65535)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestUDPPublisherSendsEvents(t *testing.T) {
	server := listenUDP(t)
	pub, err := NewUDPPublisher(server.LocalAddr().String())
	require.NoError(t, err)
	defer pub.Close()

	first := Event{TaskID: "t1", Status: StatusStarted, SourcePath: "a.wav", Mode: "Notched Music Therapy", Time: time.Unix(100, 0).UTC()}
	second := Event{TaskID: "t1", Status: StatusCompleted, SourcePath: "a.wav", OutputName: "a_filtered.wav", NotchDepthDB: 30.5, Time: time.Unix(101, 0).UTC()}
	require.NoError(t, pub.Publish(first))
	require.NoError(t, pub.Publish(second))

	for i, want := range []Event{first, second} {
		seq, ts, got, err := DecodeUDPPacket(readPacket(t, server))
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), seq)
		assert.WithinDuration(t, time.Now(), ts, time.Minute)
		assert.Equal(t, want, got)
	}
}

func TestUDPPublisherClose(t *testing.T) {
	server := listenUDP(t)
	pub, err := NewUDPPublisher(server.LocalAddr().String())
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close(), "second Close is a no-op")
	assert.Error(t, pub.Publish(Event{TaskID: "late"}))
}

func TestNewUDPPublisherBadAddress(t *testing.T) {
	_, err := NewUDPPublisher("not an address")
	assert.Error(t, err)
}

func TestDecodeUDPPacketErrors(t *testing.T) {
	_, _, _, err := DecodeUDPPacket([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "short UDP packet")

	var buf bytes.Buffer
	writePacketHeader(&buf, 1, 0, 10)
	buf.WriteString("{}")
	_, _, _, err = DecodeUDPPacket(buf.Bytes())
	assert.ErrorContains(t, err, "header says 10")

	buf.Reset()
	writePacketHeader(&buf, 1, 0, 3)
	buf.WriteString("{x}")
	_, _, _, err = DecodeUDPPacket(buf.Bytes())
	assert.ErrorContains(t, err, "invalid UDP payload")
}

type received struct {
	seq uint32
	ev  Event
}

func TestUDPReceiverDeliversEvents(t *testing.T) {
	recv, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer recv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan received, 4)
	done := make(chan error, 1)
	go func() {
		done <- recv.Receive(ctx, func(seq uint32, _ time.Time, ev Event) {
			got <- received{seq, ev}
		})
	}()

	raw, err := net.Dial("udp", recv.Addr())
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Write([]byte("garbage"))
	require.NoError(t, err)

	pub, err := NewUDPPublisher(recv.Addr())
	require.NoError(t, err)
	defer pub.Close()
	sent := []Event{
		{TaskID: "t1", Status: StatusStarted, SourcePath: "a.wav", Time: time.Unix(100, 0).UTC()},
		{TaskID: "t1", Status: StatusCompleted, SourcePath: "a.wav", OutputName: "a_filtered.wav", Time: time.Unix(101, 0).UTC()},
	}
	for _, ev := range sent {
		require.NoError(t, pub.Publish(ev))
	}

	for i, want := range sent {
		select {
		case r := <-got:
			assert.Equal(t, uint32(i+1), r.seq)
			assert.Equal(t, want, r.ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not received", i)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after cancel")
	}
	assert.Empty(t, got, "malformed packet must be dropped")
}

func TestListenUDPBadAddress(t *testing.T) {
	_, err := ListenUDP("not an address")
	assert.Error(t, err)
}
