package sh

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/kart.go/pkg/hostlink"
	"github.com/robotalks/kart.go/pkg/packet"
)

func TestPeriodic(t *testing.T) {
	require.True(t, periodic(packet.TypeHeartbeat))
	require.True(t, periodic(packet.TypeSensor))
	require.False(t, periodic(packet.TypeLog))
	require.False(t, periodic(packet.TypeHandshake2))
}

func TestFormat(t *testing.T) {
	s := &Shell{}
	require.Equal(t, "FirmwareVersion{0.3.0}", s.Format(&packet.FirmwareVersion{Minor: 3}))
	s.OutputJSON = true
	require.Equal(t, `{"type":"Handshake2","packet":{"Seq":2}}`, s.Format(&packet.Handshake2{Seq: 2}))
}

func TestConnRequest(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	conn := &Conn{Link: hostlink.NewLink(local, 0)}
	conn.Link.Handler = hostlink.HandlePacketFunc(func(_ context.Context, pkt packet.Packet) {
		conn.deliver(pkt)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Link.Run(ctx)

	// the vehicle side answers the handshake
	go func() {
		buf := make([]byte, hostlink.Overhead+5)
		if _, err := io.ReadFull(remote, buf); err != nil {
			return
		}
		payload, _ := packet.Marshal(&packet.Handshake2{Seq: 8})
		frame := hostlink.Frame{Payload: payload}
		frame.WriteTo(remote)
	}()

	res, err := conn.Request(&packet.Handshake1{Seq: 7}, packet.TypeHandshake2, time.Second)
	require.NoError(t, err)
	require.Equal(t, &packet.Handshake2{Seq: 8}, res)
	require.Empty(t, conn.waiters[packet.TypeHandshake2])
}

func TestConnRequestTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	conn := &Conn{Link: hostlink.NewLink(local, 0)}
	_, err := conn.Request(&packet.GetFirmwareVersion{}, packet.TypeFirmwareVersion, 10*time.Millisecond)
	require.Error(t, err)
	require.Empty(t, conn.waiters[packet.TypeFirmwareVersion])
	require.False(t, conn.deliver(&packet.FirmwareVersion{}))
}
