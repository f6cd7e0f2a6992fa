package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/require"

	"github.com/dirlistener/dirlistener/pkg/entry"
	"github.com/dirlistener/dirlistener/pkg/txlog"
)

type fakeConn struct {
	searchFn func(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	closed   bool
}

func (f *fakeConn) Bind(username, password string) error         { return nil }
func (f *fakeConn) UnauthenticatedBind(username string) error     { return nil }
func (f *fakeConn) Search(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
	return f.searchFn(req)
}
func (f *fakeConn) Close() error { f.closed = true; return nil }

func newTestClient(t *testing.T, c *fakeConn) *Client {
	t.Helper()
	cl := New(Config{Address: "ldap://fake", BaseDN: "dc=example,dc=com", DialTimeout: time.Second, ReadTimeout: time.Second})
	cl.dial = func(addr string, timeout time.Duration) (conn, error) {
		return c, nil
	}
	return cl
}

func TestReadReturnsEntry(t *testing.T) {
	t.Parallel()

	c := &fakeConn{
		searchFn: func(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
			return &goldap.SearchResult{
				Entries: []*goldap.Entry{
					{
						DN: "cn=alice,ou=people,dc=example,dc=com",
						Attributes: []*goldap.EntryAttribute{
							{Name: "uid", ByteValues: [][]byte{[]byte("alice")}},
							{Name: "sn", ByteValues: [][]byte{[]byte("Doe")}},
						},
					},
				},
			}, nil
		},
	}

	cl := newTestClient(t, c)
	e, err := cl.Read(context.Background(), entry.NormalizeDN("cn=alice,ou=people,dc=example,dc=com"))
	require.NoError(t, err)
	require.Equal(t, "alice", string(e.Attribute("uid").Values[0]))
}

func TestReadNotFound(t *testing.T) {
	t.Parallel()

	c := &fakeConn{
		searchFn: func(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
			return nil, goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such object"))
		},
	}

	cl := newTestClient(t, c)
	_, err := cl.Read(context.Background(), entry.NormalizeDN("cn=ghost,dc=example,dc=com"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadChangeParsesReqTypeAndDN(t *testing.T) {
	t.Parallel()

	c := &fakeConn{
		searchFn: func(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
			require.Equal(t, "reqSession=43,cn=translog,dc=example,dc=com", req.BaseDN)
			return &goldap.SearchResult{
				Entries: []*goldap.Entry{
					{
						DN: req.BaseDN,
						Attributes: []*goldap.EntryAttribute{
							{Name: "reqType", Values: []string{"m"}},
							{Name: "reqDN", Values: []string{"cn=alice,ou=people"}},
						},
					},
				},
			}, nil
		},
	}

	cl := newTestClient(t, c)
	dn, cmd, err := cl.ReadChange(context.Background(), 43)
	require.NoError(t, err)
	require.Equal(t, entry.NormalizeDN("cn=alice,ou=people"), dn)
	require.Equal(t, txlog.CommandModify, cmd)
}

func TestSearchRetriesOnServerDown(t *testing.T) {
	t.Parallel()

	calls := 0
	c := &fakeConn{
		searchFn: func(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection reset by peer")
			}
			return &goldap.SearchResult{Entries: []*goldap.Entry{{DN: req.BaseDN}}}, nil
		},
	}

	cl := newTestClient(t, c)
	_, err := cl.Read(context.Background(), entry.NormalizeDN("cn=bob,dc=example,dc=com"))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.True(t, c.closed, "first connection should have been closed on reconnect")
}
