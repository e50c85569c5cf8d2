package vhostuser

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

// dial connects to a Listener's socket as the hypervisor frontend would.
func dial(t *testing.T, path string) *net.UnixConn {
	t.Helper()

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)

	return conn
}

func sendRequest(t *testing.T, conn *net.UnixConn, msg messageType, payload []byte, wantReply bool) {
	t.Helper()

	flags := uint32(vhostUserVersion)
	if wantReply {
		flags |= flagReply
	}

	h := header{request: msg, flags: flags, size: uint32(len(payload))}
	_, err := conn.Write(h.encode())
	require.NoError(t, err)

	if len(payload) > 0 {
		_, err = conn.Write(payload)
		require.NoError(t, err)
	}
}

func readReply(t *testing.T, conn *net.UnixConn) (header, []byte) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	hdrBuf := make([]byte, headerSize)
	_, err := net.Conn(conn).Read(hdrBuf)
	require.NoError(t, err)

	h, err := decodeHeader(hdrBuf)
	require.NoError(t, err)

	if h.size == 0 {
		return h, nil
	}

	payload := make([]byte, h.size)
	_, err = net.Conn(conn).Read(payload)
	require.NoError(t, err)

	return h, payload
}

func TestListenerAcceptHandshake(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vhost-nic0.sock")

	ln, err := Listen(path, testLogger())
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Backend, 1)
	acceptErr := make(chan error, 1)

	go func() {
		b, err := ln.Accept("nic0")
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- b
	}()

	conn := dial(t, path)
	defer conn.Close()

	var backend *Backend
	select {
	case backend = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("accept failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Accept")
	}
	defer backend.Close()

	stop := make(chan struct{})
	defer close(stop)

	runErr := make(chan error, 1)
	go func() { runErr <- backend.Run(stop) }()

	sendRequest(t, conn, msgGetFeatures, nil, true)
	h, payload := readReply(t, conn)
	require.Equal(t, msgGetFeatures, h.request)
	require.NotZero(t, h.flags&flagReply)

	features, err := decodeU64(payload)
	require.NoError(t, err)
	require.NotZero(t, features&featVersion1)
	require.NotZero(t, features&featProtocolFeatures)

	sendRequest(t, conn, msgSetFeatures, encodeU64(features), false)

	require.Eventually(t, func() bool {
		return backend.State() == StateFeaturesNegotiated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListenerCloseRemovesSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vhost-nic1.sock")

	ln, err := Listen(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	_, err = net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	require.Error(t, err)
}
