package notifier

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal stand-in for the notifier's line protocol,
// driven by a handler function so each test can script replies.
type fakeServer struct {
	listener net.Listener
}

func startFakeServer(t *testing.T, handle func(msgID uint64, command, arg string) string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := &fakeServer{listener: ln}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go fs.serve(conn, handle)
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return fs
}

func (fs *fakeServer) serve(conn net.Conn, handle func(uint64, string, string) string) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.SplitN(strings.TrimRight(line, "\r\n"), "\t", 3)
		if len(parts) < 2 {
			continue
		}
		var msgID uint64
		fmt.Sscanf(parts[0], "%d", &msgID)
		command := parts[1]
		arg := ""
		if len(parts) == 3 {
			arg = parts[2]
		}
		reply := handle(msgID, command, arg)
		if reply == "" {
			continue
		}
		if _, err := conn.Write([]byte(fmt.Sprintf("%d\t%s\n", msgID, reply))); err != nil {
			return
		}
	}
}

func (fs *fakeServer) addr() string {
	return fs.listener.Addr().String()
}

func TestGetNextIDModernProtocol(t *testing.T) {
	t.Parallel()

	fs := startFakeServer(t, func(msgID uint64, command, arg string) string {
		if command == cmdGetID {
			return "43"
		}
		return ""
	})

	c := New(Config{Address: fs.addr(), DialTimeout: time.Second, ReadTimeout: time.Second})
	defer c.Close()

	result, err := c.GetNextID(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, uint64(43), result.ID)
	require.False(t, result.HasMeta)
	require.Equal(t, ProtocolModern, c.Version())
}

func TestGetNextIDLegacyProtocol(t *testing.T) {
	t.Parallel()

	fs := startFakeServer(t, func(msgID uint64, command, arg string) string {
		if command == cmdGetID {
			return "43\tcn=alice,ou=p\ta"
		}
		return ""
	})

	c := New(Config{Address: fs.addr(), DialTimeout: time.Second, ReadTimeout: time.Second})
	defer c.Close()

	result, err := c.GetNextID(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, uint64(43), result.ID)
	require.True(t, result.HasMeta)
	require.Equal(t, "a", result.Command)
	require.Equal(t, ProtocolLegacy, c.Version())
}

func TestAliveOKAndFail(t *testing.T) {
	t.Parallel()

	var shouldFail bool
	fs := startFakeServer(t, func(msgID uint64, command, arg string) string {
		if command == cmdAlive {
			if shouldFail {
				return replyAliveFail
			}
			return replyAliveOK
		}
		return ""
	})

	c := New(Config{Address: fs.addr(), DialTimeout: time.Second, ReadTimeout: time.Second})
	defer c.Close()

	require.NoError(t, c.Alive(context.Background()))

	shouldFail = true
	require.Error(t, c.Alive(context.Background()))
}

func TestGetSchemaID(t *testing.T) {
	t.Parallel()

	fs := startFakeServer(t, func(msgID uint64, command, arg string) string {
		if command == cmdGetSchemaID {
			return "7"
		}
		return ""
	})

	c := New(Config{Address: fs.addr(), DialTimeout: time.Second, ReadTimeout: time.Second})
	defer c.Close()

	id, err := c.GetSchemaID(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), id)
}

func TestConnectRetriesExhausted(t *testing.T) {
	t.Parallel()

	// Nothing listens on this address.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := New(Config{Address: addr, MaxRetries: 1, DialTimeout: 100 * time.Millisecond, ReadTimeout: time.Second})
	defer c.Close()

	_, err = c.GetNextID(context.Background(), 1)
	require.Error(t, err)
}

func TestBackoffDelayShape(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2*time.Second, backoffDelay(1))
	require.Equal(t, 4*time.Second, backoffDelay(2))
	require.Equal(t, 32*time.Second, backoffDelay(5))
	require.Equal(t, 32*time.Second, backoffDelay(9))
}
