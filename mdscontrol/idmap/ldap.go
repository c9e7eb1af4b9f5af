package idmap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"

	"github.com/MI-OSiRIS/mdsauth/mdscontrol/types"
)

const dialMaxTries = 3

var (
	errNoEntry                = errors.New("no directory entry for client")
	errZeroID                 = errors.New("client resolved to uid or gid 0")
	errNoSupplementaryGroups  = errors.New("no supplementary group gids found for client")
	errMissingGroupSearchAttr = errors.New("entry is missing the group search attribute")
)

// directoryConn is the slice of *ldap.Conn the backend needs. Tests
// substitute an in-memory fake.
type directoryConn interface {
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

type ldapBackend struct {
	cfg  types.LDAPConfig
	dial func(ctx context.Context) (directoryConn, error)
}

func newLDAPBackend(cfg types.LDAPConfig) *ldapBackend {
	b := &ldapBackend{cfg: cfg}
	b.dial = b.dialURI
	return b
}

func (b *ldapBackend) Name() string { return "ldap" }

func (b *ldapBackend) dialURI(ctx context.Context) (directoryConn, error) {
	conn, err := backoff.Retry(ctx, func() (*ldap.Conn, error) {
		return ldap.DialURL(b.cfg.URI)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(dialMaxTries))
	if err != nil {
		return nil, fmt.Errorf("dialing %q: %w", b.cfg.URI, err)
	}
	return conn, nil
}

// bindPassword resolves the simple-bind password: a secret file takes
// precedence over the plaintext key. The file read trims surrounding
// whitespace; the plaintext value only loses trailing newlines.
func (b *ldapBackend) bindPassword() (string, error) {
	if b.cfg.SecretFile != "" {
		raw, err := os.ReadFile(b.cfg.SecretFile)
		if err != nil {
			return "", fmt.Errorf("reading bind secret: %w", err)
		}
		if pw := strings.TrimSpace(string(raw)); pw != "" {
			return pw, nil
		}
	}
	return strings.TrimRight(b.cfg.BindPW, "\n"), nil
}

// Lookup resolves name through a two-phase search: the user record
// under basedn gives uid, primary gid and the group-search key, then
// the group records under groupdn contribute the supplementary gids.
func (b *ldapBackend) Lookup(ctx context.Context, name string) ([]int64, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if b.cfg.BindDN == "" {
		err = conn.UnauthenticatedBind("")
	} else {
		var pw string
		if pw, err = b.bindPassword(); err == nil {
			err = conn.Bind(b.cfg.BindDN, pw)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bind to %q: %w", b.cfg.URI, err)
	}

	uid, gid, groupKey, err := b.userRecord(conn, name)
	if err != nil {
		return nil, err
	}

	supp, err := b.groupGIDs(conn, groupKey)
	if err != nil {
		return nil, err
	}

	return append([]int64{uid, gid}, supp...), nil
}

func (b *ldapBackend) userRecord(conn directoryConn, name string) (uid, gid int64, groupKey string, err error) {
	attrs := []string{"uidNumber", "gidNumber"}
	if b.cfg.GroupAttr != "dn" {
		attrs = append(attrs, b.cfg.GroupAttr)
	}
	filter := fmt.Sprintf("(%s=%s)", b.cfg.IDAttr, ldap.EscapeFilter(name))

	res, err := conn.Search(ldap.NewSearchRequest(
		b.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, attrs, nil))
	if err != nil {
		return 0, 0, "", fmt.Errorf("user search %q: %w", filter, err)
	}
	log.Trace().Caller().Msgf("ldap user search %q returned %d entries", filter, len(res.Entries))
	if len(res.Entries) == 0 {
		return 0, 0, "", fmt.Errorf("%w: user search %q", errNoEntry, filter)
	}

	entry := res.Entries[0]
	uid, err = strconv.ParseInt(entry.GetAttributeValue("uidNumber"), 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("parsing uidNumber: %w", err)
	}
	gid, err = strconv.ParseInt(entry.GetAttributeValue("gidNumber"), 10, 64)
	if err != nil {
		return 0, 0, "", fmt.Errorf("parsing gidNumber: %w", err)
	}
	if uid == 0 || gid == 0 {
		return 0, 0, "", fmt.Errorf("%w: %q", errZeroID, name)
	}

	if b.cfg.GroupAttr == "dn" {
		groupKey = entry.DN
	} else if groupKey = entry.GetAttributeValue(b.cfg.GroupAttr); groupKey == "" {
		return 0, 0, "", fmt.Errorf("%w: %q", errMissingGroupSearchAttr, b.cfg.GroupAttr)
	}

	return uid, gid, groupKey, nil
}

func (b *ldapBackend) groupGIDs(conn directoryConn, groupKey string) ([]int64, error) {
	filter := fmt.Sprintf("(%s=%s)", b.cfg.MemberAttr, ldap.EscapeFilter(groupKey))

	res, err := conn.Search(ldap.NewSearchRequest(
		b.cfg.GroupDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, []string{"gidNumber"}, nil))
	if err != nil {
		return nil, fmt.Errorf("group search %q: %w", filter, err)
	}
	log.Trace().Caller().Msgf("ldap group search %q returned %d entries", filter, len(res.Entries))

	var gids []int64
	for _, entry := range res.Entries {
		for _, val := range entry.GetAttributeValues("gidNumber") {
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing group gidNumber %q: %w", val, err)
			}
			gids = append(gids, n)
		}
	}
	if len(gids) == 0 {
		return nil, errNoSupplementaryGroups
	}
	return gids, nil
}
