package healthmesh

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_EchoesProbes(t *testing.T) {
	s := NewServer("127.0.0.1", 0)
	require.NoError(t, s.Start())
	defer s.Stop()

	rtt, err := probeOnce(s.conn.LocalAddr().String())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
}

// TestServer_IgnoresStrayTraffic ensures a datagram without the probe magic is dropped rather
// than echoed, so unrelated traffic on the port cannot fake a healthy round trip.
func TestServer_IgnoresStrayTraffic(t *testing.T) {
	s := NewServer("127.0.0.1", 0)
	require.NoError(t, s.Start())
	defer s.Stop()

	conn, err := net.Dial("udp", s.conn.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(500*time.Millisecond)))
	_, err = conn.Write([]byte("not a probe"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	assert.Error(t, err, "stray datagram must not be echoed")
}

func TestProbeOnce_RejectsCorruptEcho(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	go func() {
		buf := make([]byte, 16)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		binary.BigEndian.PutUint32(buf, 0xdeadbeef)
		_, _ = pc.WriteTo(buf[:n], addr)
	}()

	_, err = probeOnce(pc.LocalAddr().String())
	assert.ErrorIs(t, err, errInvalidEcho)
}

func TestProbeOnce_TimesOutWithoutAServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	_, err = probeOnce(addr)
	assert.Error(t, err)
}

func TestBackoff_DoublesUpToCap(t *testing.T) {
	b := newBackoff(10 * time.Second)

	assert.Equal(t, 2*time.Second, b.next())
	assert.Equal(t, 4*time.Second, b.next())
	assert.Equal(t, 8*time.Second, b.next())
	assert.Equal(t, 10*time.Second, b.next())
	assert.Equal(t, 10*time.Second, b.next())

	b.reset()
	assert.Equal(t, 2*time.Second, b.next())
}
