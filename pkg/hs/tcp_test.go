package hs

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer answers each request line with the next scripted reply
// and records what it received.
type scriptedServer struct {
	mu       sync.Mutex
	received []string
}

func startScripted(t *testing.T, replies ...string) (*TCPConn, *scriptedServer) {
	t.Helper()
	client, server := net.Pipe()
	s := &scriptedServer{}

	go func() {
		defer server.Close()
		r := bufio.NewReader(server)
		for _, reply := range replies {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, strings.TrimSuffix(line, "\n"))
			s.mu.Unlock()
			if _, err := server.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}()

	conn := NewConn(client, time.Second)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, s
}

func (s *scriptedServer) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func TestTCPConn_OpenAndFind(t *testing.T) {
	conn, srv := startScripted(t, "0\t1", "0\t2\tk\tv\u0001Ix\tk2\t\x00")
	ctx := context.Background()

	def := IndexDefinition{Table: "caches", Columns: []string{"id", "cache"}, FilterColumns: []string{"expiration"}}
	require.NoError(t, conn.OpenIndex(ctx, 3, "test", def))

	rows, err := conn.Find(ctx, FindRequest{
		IndexID: 3, Op: OpGte, Keys: []string{"k"}, Limit: 10, Offset: 0,
		Filters: []Filter{{Type: FilterWhile, Op: OpGt, Column: 0, Value: "0"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"k", "v\tx"}, {"k2", ""}}, rows)

	assert.Equal(t, []string{
		"P\t3\ttest\tcaches\tPRIMARY\tid,cache\texpiration",
		"3\t>=\t1\tk\t10\t0\tW\t>\t0\t0",
	}, srv.lines())
}

func TestTCPConn_ModifyAndInsert(t *testing.T) {
	conn, srv := startScripted(t, "0\t1\t2", "0\t1", "1\t1\t121")
	ctx := context.Background()

	n, err := conn.Modify(ctx, FindRequest{IndexID: 1, Op: OpEq, Keys: []string{"a"}, Limit: 1}, Modification{Op: ModifyUpdate, Values: []string{"x", "0"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, conn.Insert(ctx, 2, []string{"a", "b", "0"}))

	err = conn.Insert(ctx, 2, []string{"a", "b", "0"})
	require.True(t, IsDuplicateKey(err))

	assert.Equal(t, []string{
		"1\t=\t1\ta\t1\t0\tU\tx\t0",
		"2\t+\t3\ta\tb\t0",
		"2\t+\t3\ta\tb\t0",
	}, srv.lines())
}

func TestTCPConn_Auth(t *testing.T) {
	conn, srv := startScripted(t, "0\t1", "3\t1\tunauth")
	ctx := context.Background()

	require.NoError(t, conn.Auth(ctx, "s3cret"))
	err := conn.Auth(ctx, "wrong")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Code)
	assert.Equal(t, "unauth", pe.Message)
	assert.Equal(t, "A\t1\ts3cret", srv.lines()[0])
}

func TestTCPConn_ContextCancelled(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := NewConn(client, 0)
	defer conn.Close()

	go func() {
		_, _ = bufio.NewReader(server).ReadString('\n')
		// never answers
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.Find(ctx, FindRequest{IndexID: 1, Op: OpEq, Keys: []string{"k"}, Limit: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrProtocol, "timeouts are left for the client to treat as transport failures")
}

func TestTCPDialer_RealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 4)
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func(nc net.Conn) {
				defer nc.Close()
				r := bufio.NewReader(nc)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					received <- strings.TrimSuffix(line, "\n")
					_, _ = nc.Write([]byte("0\t1\n"))
				}
			}(nc)
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	c, err := New(Config{Host: "127.0.0.1", PortRead: port, PortWrite: port, DBName: "test", AuthSecret: "pw"})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.OpenIndex(context.Background(), ModeSelect, cachesDef)
	require.NoError(t, err)

	assert.Equal(t, "A\t1\tpw", <-received)
	assert.Equal(t, "P\t1\ttest\tcaches\tPRIMARY\tcache,expiration", <-received)
}
