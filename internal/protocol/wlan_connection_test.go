package protocol

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pikoder-service/internal/model"
)

// fakeAccessPoint is a UDP peer standing in for the PiKoder WLAN bridge
type fakeAccessPoint struct {
	conn     *net.UDPConn
	commands chan string
}

func newFakeAccessPoint(t *testing.T, reply func(cmd string) [][]byte, replyPort func() int) *fakeAccessPoint {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	ap := &fakeAccessPoint{conn: conn, commands: make(chan string, 16)}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			cmd := string(buf[:n])
			ap.commands <- cmd
			dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: replyPort()}
			for _, d := range reply(cmd) {
				if _, err := conn.WriteToUDP(d, dst); err != nil {
					return
				}
			}
		}
	}()
	return ap
}

func (ap *fakeAccessPoint) port() int {
	return ap.conn.LocalAddr().(*net.UDPAddr).Port
}

func newTestWLAN(t *testing.T, reply func(cmd string) [][]byte) (*WLANConnection, *fakeAccessPoint) {
	t.Helper()
	var link *WLANConnection
	replyPort := func() int {
		return link.LocalAddr().(*net.UDPAddr).Port
	}
	ap := newFakeAccessPoint(t, reply, replyPort)

	cfg := DefaultWLANConfig()
	cfg.APAddress = "127.0.0.1"
	cfg.TxPort = ap.port()
	cfg.RxPort = 0
	cfg.PollInterval = 20 * time.Millisecond
	link = NewWLANConnection(cfg, zaptest.NewLogger(t))

	require.NoError(t, link.Connect(context.Background(), ""))
	t.Cleanup(func() { link.Disconnect() })
	return link, ap
}

func TestWLANDatagramReply(t *testing.T) {
	link, ap := newTestWLAN(t, func(cmd string) [][]byte {
		return [][]byte{[]byte("1500\r\n")}
	})
	ctx := context.Background()

	require.NoError(t, link.Send(ctx, []byte("1?")))
	reply, err := link.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "1500", reply)
	require.Equal(t, "1?", <-ap.commands)
	require.Equal(t, "127.0.0.1", link.Target())
	require.Equal(t, model.LinkTypeWLAN, link.Kind())
}

func TestWLANByteWiseReply(t *testing.T) {
	link, _ := newTestWLAN(t, func(cmd string) [][]byte {
		var out [][]byte
		for _, b := range []byte("\r\n!\r\n") {
			out = append(out, []byte{b})
		}
		return out
	})
	ctx := context.Background()

	require.NoError(t, link.Send(ctx, []byte("1=075")))
	reply, err := link.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "!", reply)
}

func TestWLANTimeoutCancelsListener(t *testing.T) {
	link, _ := newTestWLAN(t, func(cmd string) [][]byte { return nil })
	ctx := context.Background()

	require.NoError(t, link.Send(ctx, []byte("0")))
	start := time.Now()
	_, err := link.Receive(ctx)
	require.ErrorIs(t, err, ErrTimedOut)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	link.mutex.Lock()
	require.Nil(t, link.active)
	link.mutex.Unlock()
	require.True(t, link.IsOpen())
}

func TestWLANUsableAfterTimeout(t *testing.T) {
	delay := make(chan struct{})
	link, _ := newTestWLAN(t, func(cmd string) [][]byte {
		if cmd == "0" {
			<-delay
			return [][]byte{[]byte("2.09")}
		}
		return [][]byte{[]byte("1500")}
	})
	ctx := context.Background()

	require.NoError(t, link.Send(ctx, []byte("0")))
	_, err := link.Receive(ctx)
	require.ErrorIs(t, err, ErrTimedOut)
	close(delay)

	require.NoError(t, link.Send(ctx, []byte("1?")))
	reply, err := link.Receive(ctx)
	require.NoError(t, err)
	require.Contains(t, []string{"1500", "2.09"}, reply)
}

func TestWLANReceiveWithoutSend(t *testing.T) {
	link, _ := newTestWLAN(t, func(cmd string) [][]byte { return nil })
	_, err := link.Receive(context.Background())
	require.ErrorIs(t, err, ErrTimedOut)
}

func TestWLANNotOpen(t *testing.T) {
	link := NewWLANConnection(DefaultWLANConfig(), zaptest.NewLogger(t))
	require.ErrorIs(t, link.Send(context.Background(), []byte("0")), ErrNotOpen)
	require.False(t, link.IsAlive(context.Background()))
	require.Equal(t, Capabilities{}, link.Capabilities())
}

func TestWLANConfigAddresses(t *testing.T) {
	cfg := DefaultWLANConfig()
	require.Equal(t, "192.168.4.1:"+strconv.Itoa(12001), cfg.TxAddress())
	require.Equal(t, ":12000", cfg.RxAddress())
	require.Equal(t, 500*time.Millisecond, cfg.poll().Budget())
}
