// Package idmap resolves a caller name into a concrete identity
// through an ordered chain of directory backends, so the capability
// policy can be rewritten to the caller's real uid and groups before
// evaluation.
package idmap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MI-OSiRIS/mdsauth/mdscontrol/types"
)

// ErrRemapFailed means every configured backend failed to resolve the
// name. The policy's grants are left untouched in that case.
var ErrRemapFailed = errors.New("identity remap failed on all backends")

// Backend resolves a caller name into an id list laid out as
// [uid, primary gid, supplementary gids...]. A backend that has
// nothing to contribute returns an empty list and no error.
type Backend interface {
	Name() string
	Lookup(ctx context.Context, name string) ([]int64, error)
}

// Remapper runs the configured backend chain in order and returns the
// first non-empty id list.
type Remapper struct {
	backends []Backend
}

// NewRemapper builds the backend chain from configuration. Unknown
// backend names are skipped with a warning so a typo in one entry does
// not disable the rest of the chain.
func NewRemapper(cfg *types.Config) *Remapper {
	r := &Remapper{}
	for _, name := range cfg.Idmap.Backends() {
		switch name {
		case "ldap":
			r.backends = append(r.backends, newLDAPBackend(cfg.Idmap.LDAP))
		case "key":
			r.backends = append(r.backends, keyBackend{})
		default:
			log.Warn().Str("backend", name).Msg("unknown idmap backend, skipping")
		}
	}
	return r
}

// NewRemapperWithBackends builds a remapper over an explicit chain,
// for tests and embedders that construct their own backends.
func NewRemapperWithBackends(backends ...Backend) *Remapper {
	return &Remapper{backends: backends}
}

// UpdateIDs resolves name through the backend chain. A failing backend
// is logged and the next one tried; only total failure is an error.
// On success the result always holds at least [uid, gid, supp...].
func (r *Remapper) UpdateIDs(ctx context.Context, name string) ([]int64, error) {
	for _, b := range r.backends {
		ids, err := b.Lookup(ctx, name)
		if err != nil {
			log.Warn().Err(err).
				Str("backend", b.Name()).
				Str("name", name).
				Msg("idmap lookup failed, maintaining original ids")
			continue
		}
		if len(ids) == 0 {
			continue
		}
		log.Debug().
			Str("backend", b.Name()).
			Int64("uid", ids[0]).
			Int64("gid", ids[1]).
			Ints64("gids", ids[2:]).
			Msgf("resolved client %q", name)
		return ids, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrRemapFailed, name)
}

// keyBackend is a placeholder for key-based identity mapping; it
// acknowledges selection and contributes nothing.
type keyBackend struct{}

func (keyBackend) Name() string { return "key" }

func (keyBackend) Lookup(ctx context.Context, name string) ([]int64, error) {
	log.Debug().Str("name", name).Msg("idmap backend selected = key")
	return nil, nil
}
