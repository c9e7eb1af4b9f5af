// Package mdscontrol ties the capability engine together for the
// metadata server: one shared policy, a remapper, and the locking
// discipline the server relies on when consulting the policy from many
// request threads.
package mdscontrol

import (
	"context"
	"fmt"
	"sync"

	"github.com/MI-OSiRIS/mdsauth/mdscontrol/caps"
	"github.com/MI-OSiRIS/mdsauth/mdscontrol/idmap"
	"github.com/MI-OSiRIS/mdsauth/mdscontrol/types"
)

// Authorizer is the decision point a metadata server consults for
// every client operation touching the namespace. It is safe for
// concurrent use: mutations (SetCaps, SetAllowAll, UpdateIdentity)
// take the write lock, decisions take the read lock, and directory
// lookups run before any lock is taken.
type Authorizer struct {
	mu       sync.RWMutex
	policy   *caps.Policy
	remapper *idmap.Remapper
}

func NewAuthorizer(cfg *types.Config) *Authorizer {
	return &Authorizer{
		policy:   &caps.Policy{},
		remapper: idmap.NewRemapper(cfg),
	}
}

// SetCaps parses text and installs the resulting policy. On a parse
// error the previous policy stays in place.
func (a *Authorizer) SetCaps(text string) error {
	pol, err := caps.ParsePolicy(text)
	if err != nil {
		return fmt.Errorf("setting caps: %w", err)
	}

	a.mu.Lock()
	a.policy = pol
	a.mu.Unlock()
	return nil
}

// SetAllowAll replaces the policy with a single unconstrained wildcard
// grant.
func (a *Authorizer) SetAllowAll() {
	a.mu.Lock()
	a.policy.SetAllowAll()
	a.mu.Unlock()
}

func (a *Authorizer) AllowAll() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy.AllowAll()
}

func (a *Authorizer) IdmapRequired() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy.IdmapRequired()
}

// IsCapable decides one request against the current policy.
func (a *Authorizer) IsCapable(req caps.Request) bool {
	a.mu.RLock()
	ok := a.policy.IsCapable(req)
	a.mu.RUnlock()

	if ok {
		authDecisions.WithLabelValues("allowed").Inc()
	} else {
		authDecisions.WithLabelValues("denied").Inc()
	}
	return ok
}

// PathCapable is the cheap pre-check deciding whether a path is worth
// descending into at all.
func (a *Authorizer) PathCapable(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy.PathCapable(path)
}

// UpdateIdentity resolves name through the idmap backend chain and
// rewrites every grant to the resolved uid and supplementary gids. The
// lookup runs unlocked; the grant rewrite re-enters under the write
// lock. On failure the grants are untouched and the error is the
// authoritative signal, never the length of the returned id list.
func (a *Authorizer) UpdateIdentity(ctx context.Context, name string) ([]int64, error) {
	ids, err := a.remapper.UpdateIDs(ctx, name)
	if err != nil {
		idmapUpdates.WithLabelValues("failed").Inc()
		return nil, err
	}

	a.mu.Lock()
	a.policy.SetIdentity(ids[0], ids[2:])
	a.mu.Unlock()

	idmapUpdates.WithLabelValues("ok").Inc()
	return ids, nil
}

func (a *Authorizer) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy.String()
}
