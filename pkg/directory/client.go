// Package directory wraps the authoritative directory service: entry
// reads, change-log lookups, and the open/bind/reconnect lifecycle the
// dispatcher depends on. It never writes to the directory.
package directory

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/pkg/entry"
	"github.com/dirlistener/dirlistener/pkg/txlog"
)

// conn is the subset of *goldap.Conn the client depends on, extracted so
// tests can substitute a fake directory without a live LDAP server.
type conn interface {
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	Close() error
}

// KerberosConfig configures an optional GSSAPI bind, used instead of a
// simple bind when the directory requires it.
type KerberosConfig struct {
	Enabled          bool
	KeytabPath       string
	ServicePrincipal string
	Krb5Conf         string
	Realm            string
}

// Config configures a Client.
type Config struct {
	// Address is an LDAP URL (ldap:// or ldaps://).
	Address string

	BindDN       string
	BindPassword string
	BaseDN       string

	// MaxRetries bounds reconnect attempts; 0 means unlimited.
	MaxRetries int

	DialTimeout time.Duration
	ReadTimeout time.Duration

	Kerberos KerberosConfig
}

// dialFunc abstracts goldap.DialURL for tests.
type dialFunc func(addr string, timeout time.Duration) (conn, error)

// Client wraps a single directory connection with open/bind/reconnect
// semantics.
type Client struct {
	cfg  Config
	dial dialFunc

	mu sync.Mutex
	c  conn
}

// New creates a Client. Open must be called (or is called lazily by Read
// / ReadChange) before any operation.
func New(cfg Config) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	return &Client{cfg: cfg, dial: defaultDial}
}

func defaultDial(addr string, timeout time.Duration) (conn, error) {
	c, err := goldap.DialURL(addr, goldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Open dials and binds to the directory, retrying with exponential
// backoff until success, retry-budget exhaustion, or ctx cancellation
//.
func (cl *Client) Open(ctx context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.openLocked(ctx)
}

func (cl *Client) openLocked(ctx context.Context) error {
	if cl.c != nil {
		return nil
	}

	attempt := 0
	for {
		attempt++

		c, err := cl.dial(cl.cfg.Address, cl.cfg.DialTimeout)
		if err == nil {
			if berr := cl.bind(c); berr != nil {
				c.Close()
				err = berr
			} else {
				cl.c = c
				logger.Info("directory: connected", logger.Address(cl.cfg.Address), logger.Attempt(attempt))
				return nil
			}
		}

		logger.Warn("directory: open/bind attempt failed", logger.Address(cl.cfg.Address), logger.Attempt(attempt), logger.Err(err))

		if cl.cfg.MaxRetries > 0 && attempt >= cl.cfg.MaxRetries {
			return fmt.Errorf("%w: %d attempts against %s", ErrReconnectLimitExceeded, attempt, cl.cfg.Address)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
}

func (cl *Client) bind(c conn) error {
	if cl.cfg.Kerberos.Enabled {
		return cl.gssapiBind(c)
	}
	if cl.cfg.BindDN == "" {
		return c.UnauthenticatedBind("")
	}
	return c.Bind(cl.cfg.BindDN, cl.cfg.BindPassword)
}

// gssapiBind performs a SASL/GSSAPI bind: it loads cfg.Kerberos.KeytabPath
// and Krb5Conf through gokrb5's keytab, config and client packages, logs
// in, and calls the connection's GSSAPIBind. It fails when the connection
// does not implement gssapiBinder.
func (cl *Client) gssapiBind(c conn) error {
	kt, err := keytab.Load(cl.cfg.Kerberos.KeytabPath)
	if err != nil {
		return fmt.Errorf("directory: load keytab %s: %w", cl.cfg.Kerberos.KeytabPath, err)
	}
	krbCfg, err := config.Load(cl.cfg.Kerberos.Krb5Conf)
	if err != nil {
		return fmt.Errorf("directory: load krb5 config %s: %w", cl.cfg.Kerberos.Krb5Conf, err)
	}

	principal, realm := splitPrincipal(cl.cfg.Kerberos.ServicePrincipal, cl.cfg.Kerberos.Realm)
	krbClient := client.NewWithKeytab(principal, realm, kt, krbCfg, client.DisablePAFXFAST(true))
	if err := krbClient.Login(); err != nil {
		return fmt.Errorf("directory: kerberos login: %w", err)
	}
	defer krbClient.Destroy()

	gc, ok := c.(gssapiBinder)
	if !ok {
		return fmt.Errorf("directory: connection does not support GSSAPI bind")
	}
	gssClient := &gssapi.Client{Client: krbClient}
	return gc.GSSAPIBind(gssClient, cl.cfg.Kerberos.ServicePrincipal, "")
}

// gssapiBinder is implemented by *goldap.Conn; narrowed out of conn so the
// common Read/ReadChange path never needs to know about Kerberos.
type gssapiBinder interface {
	GSSAPIBind(client goldap.GSSAPIClient, servicePrincipalName, authzID string) error
}

func splitPrincipal(spn, fallbackRealm string) (string, string) {
	for i := len(spn) - 1; i >= 0; i-- {
		if spn[i] == '@' {
			return spn[:i], spn[i+1:]
		}
	}
	return spn, fallbackRealm
}

// reconnectLocked closes the current connection (if any) and reopens it.
func (cl *Client) reconnectLocked(ctx context.Context) error {
	if cl.c != nil {
		cl.c.Close()
		cl.c = nil
	}
	return cl.openLocked(ctx)
}

// Read fetches a single entry by DN with all attributes. It
// returns ErrNotFound if the directory has no such object.
func (cl *Client) Read(ctx context.Context, dn entry.DN) (*entry.Entry, error) {
	result, err := cl.searchWithRetry(ctx, dn.String(), "(objectClass=*)", nil)
	if err != nil {
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, ErrNotFound
	}

	e := entry.New(dn)
	for _, attr := range result.Entries[0].Attributes {
		values := make([][]byte, len(attr.ByteValues))
		copy(values, attr.ByteValues)
		e.SetAttribute(attr.Name, values)
	}
	return e, nil
}

// ReadChange fetches the change-log entry for transaction id, used only
// when the notifier's GET_ID reply omits dn/command. The change-log DN is "reqSession=<id>,cn=translog,<baseDN>"
// with reqType/reqDN attributes.
func (cl *Client) ReadChange(ctx context.Context, id uint64) (entry.DN, txlog.Command, error) {
	changeDN := fmt.Sprintf("reqSession=%d,cn=translog,%s", id, cl.cfg.BaseDN)

	result, err := cl.searchWithRetry(ctx, changeDN, "(objectClass=*)", []string{"reqType", "reqDN"})
	if err != nil {
		return "", "", err
	}
	if len(result.Entries) == 0 {
		return "", "", ErrNotFound
	}

	e := result.Entries[0]
	reqType := e.GetAttributeValue("reqType")
	reqDN := e.GetAttributeValue("reqDN")
	if reqType == "" || reqDN == "" {
		return "", "", fmt.Errorf("directory: change-log entry %s missing reqType/reqDN", changeDN)
	}

	return entry.NormalizeDN(reqDN), txlog.Command(reqType), nil
}

// searchWithRetry performs a base-scope search, reconnecting and retrying
// once on a server-down condition.
func (cl *Client) searchWithRetry(ctx context.Context, baseDN, filter string, attrs []string) (*goldap.SearchResult, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if cl.c == nil {
			if err := cl.openLocked(ctx); err != nil {
				return nil, err
			}
		}

		req := goldap.NewSearchRequest(
			baseDN,
			goldap.ScopeBaseObject,
			goldap.NeverDerefAliases,
			0, 0, false,
			filter,
			attrs,
			nil,
		)

		result, err := cl.c.Search(req)
		if err == nil {
			return result, nil
		}

		if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) {
			return &goldap.SearchResult{}, nil
		}
		if isNonTransient(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
		}

		lastErr = err
		logger.Warn("directory: search failed, reconnecting", logger.BaseDN(baseDN), logger.Attempt(attempt), logger.Err(err))
		if rerr := cl.reconnectLocked(ctx); rerr != nil {
			return nil, rerr
		}
	}

	return nil, fmt.Errorf("directory: search %s failed after retry: %w", baseDN, lastErr)
}

// isNonTransient reports whether err is a semantic LDAP error the
// dispatcher must see unchanged, rather than a server-down condition this
// client should retry.
func isNonTransient(err error) bool {
	return goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidAttributeSyntax) ||
		goldap.IsErrorWithCode(err, goldap.LDAPResultUndefinedAttributeType) ||
		goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidDNSyntax)
}

// Close closes the underlying connection.
func (cl *Client) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.c == nil {
		return nil
	}
	err := cl.c.Close()
	cl.c = nil
	return err
}
