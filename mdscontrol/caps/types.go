// Package caps implements the capability language used to authorize
// client operations against the metadata service namespace.
//
// A capability is a textual policy such as
//
//	allow rw path=/home uid=1000 gids=1000,4000
//
// parsed into a Policy: an ordered list of grants, each pairing a
// permission spec with a match narrowing the paths and identities the
// grant applies to. The package is pure; identity remapping and
// configuration live in sibling packages.
package caps

import (
	"fmt"
	"strings"
)

// Mask is the set of operation bits a caller requests in one
// authorization query.
type Mask uint32

const (
	MayRead Mask = 1 << iota
	MayWrite
	MayExecute
	MayChown
	MayChgrp
	MaySetVxattr
	MaySnapshot
)

// CapSpec is the permission portion of a grant.
type CapSpec uint8

const (
	SpecRead CapSpec = 1 << iota
	SpecWrite
	SpecVxattr
	SpecSnapshot
	// SpecAll covers everything, including bits added later.
	SpecAll
)

// Canonical spec shapes accepted by the grammar.
const (
	SpecRW   = SpecRead | SpecWrite
	SpecRWP  = SpecRW | SpecVxattr
	SpecRWS  = SpecRW | SpecSnapshot
	SpecRWPS = SpecRW | SpecVxattr | SpecSnapshot
)

func (s CapSpec) AllowAll() bool { return s&SpecAll != 0 }

// AllowRead reports whether the spec permits read and execute.
func (s CapSpec) AllowRead() bool { return s.AllowAll() || s&SpecRead != 0 }

func (s CapSpec) AllowWrite() bool { return s.AllowAll() || s&SpecWrite != 0 }

// AllowSetVxattr reports whether the spec permits setting virtual xattrs.
func (s CapSpec) AllowSetVxattr() bool { return s.AllowAll() || s&SpecVxattr != 0 }

// AllowSnapshot reports whether the spec permits snapshot creation and
// deletion.
func (s CapSpec) AllowSnapshot() bool { return s.AllowAll() || s&SpecSnapshot != 0 }

// Allows reports whether the spec covers the requested read/write needs.
func (s CapSpec) Allows(needRead, needWrite bool) bool {
	if s.AllowAll() {
		return true
	}
	if needRead && !s.AllowRead() {
		return false
	}
	if needWrite && !s.AllowWrite() {
		return false
	}
	return true
}

func (s CapSpec) String() string {
	if s.AllowAll() {
		return "*"
	}
	var b strings.Builder
	if s&SpecRead != 0 {
		b.WriteByte('r')
	}
	if s&SpecWrite != 0 {
		b.WriteByte('w')
	}
	if s&SpecVxattr != 0 {
		b.WriteByte('p')
	}
	if s&SpecSnapshot != 0 {
		b.WriteByte('s')
	}
	return b.String()
}

// UIDAny is the Match.UID sentinel meaning "no UID constraint".
const UIDAny int64 = -1

// Match is the constraint portion of a grant: a path prefix plus
// optional UID and GID constraints. The zero value is not valid; use
// NewMatch so the path invariant holds.
type Match struct {
	// Path is a prefix with the leading slashes stripped. Empty
	// means any path.
	Path string
	UID  int64
	// GIDs is sorted ascending after parsing. Only consulted when
	// UID is not UIDAny.
	GIDs []int64
}

// NewMatch returns a Match for path with no identity constraint.
func NewMatch(path string) Match {
	return Match{Path: strings.TrimLeft(path, "/"), UID: UIDAny}
}

// IsMatchAll reports whether the match constrains nothing.
func (m Match) IsMatchAll() bool {
	return m.Path == "" && m.UID == UIDAny
}

// MatchPath reports whether target falls under the match's path
// prefix. A prefix without a trailing slash only matches at a path
// component boundary, so path=foo matches foo and foo/bar but not food.
func (m Match) MatchPath(target string) bool {
	if m.Path == "" {
		return true
	}
	if !strings.HasPrefix(target, m.Path) {
		return false
	}
	if len(target) > len(m.Path) &&
		m.Path[len(m.Path)-1] != '/' &&
		target[len(m.Path)] != '/' {
		return false
	}
	return true
}

// Match reports whether the grant applies to a request on target made
// by the given caller identity.
func (m Match) Match(target string, callerUID, callerGID int64, callerGIDList []int64) bool {
	if m.UID != UIDAny {
		if m.UID != callerUID {
			return false
		}
		if len(m.GIDs) != 0 && !m.matchGID(callerGID, callerGIDList) {
			return false
		}
	}
	return m.MatchPath(target)
}

func (m Match) matchGID(callerGID int64, callerGIDList []int64) bool {
	for _, gid := range m.GIDs {
		if gid == callerGID {
			return true
		}
	}
	for _, gid := range callerGIDList {
		for _, allowed := range m.GIDs {
			if gid == allowed {
				return true
			}
		}
	}
	return false
}

func (m Match) String() string {
	var b strings.Builder
	if m.Path != "" {
		fmt.Fprintf(&b, "path=\"/%s\"", m.Path)
		if m.UID != UIDAny {
			b.WriteByte(' ')
		}
	}
	if m.UID != UIDAny {
		fmt.Fprintf(&b, "uid=%d", m.UID)
		if len(m.GIDs) != 0 {
			b.WriteString(" gids=")
			for i, gid := range m.GIDs {
				if i > 0 {
					b.WriteByte(',')
				}
				fmt.Fprintf(&b, "%d", gid)
			}
		}
	}
	return b.String()
}

// Grant is one allow clause.
type Grant struct {
	Spec  CapSpec
	Match Match
}

func (g Grant) String() string {
	out := "allow " + g.Spec.String()
	if !g.Match.IsMatchAll() {
		out += " " + g.Match.String()
	}
	return out
}

// Policy is an ordered list of grants plus the idmap marker. Grants
// preserve source order; evaluation scans them in order. A Policy has
// no internal locking: callers sharing one across goroutines must hold
// an exclusive lock around ParsePolicy results being installed,
// SetIdentity, and SetAllowAll, and at least a shared lock around
// reads.
type Policy struct {
	Grants []Grant

	idmapRequired bool
}

// IdmapRequired reports whether the capability text asked for caller
// identity remapping before evaluation.
func (p *Policy) IdmapRequired() bool { return p.idmapRequired }

// SetAllowAll replaces the grant list with a single unconstrained
// wildcard grant.
func (p *Policy) SetAllowAll() {
	p.Grants = []Grant{{Spec: SpecAll, Match: NewMatch("")}}
}

// AllowAll reports whether any grant is an unconstrained wildcard.
func (p *Policy) AllowAll() bool {
	for _, g := range p.Grants {
		if g.Match.IsMatchAll() && g.Spec.AllowAll() {
			return true
		}
	}
	return false
}

// SetIdentity overwrites every grant's identity constraint with the
// remapped caller: uid plus the supplementary gids. Primary gid is
// intentionally absent; it arrives per-request from the caller.
func (p *Policy) SetIdentity(uid int64, gids []int64) {
	for i := range p.Grants {
		p.Grants[i].Match.UID = uid
		p.Grants[i].Match.GIDs = append([]int64(nil), gids...)
	}
}

func (p *Policy) String() string {
	var b strings.Builder
	b.WriteString("MDSAuthCaps[")
	for i, g := range p.Grants {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.String())
	}
	b.WriteByte(']')
	return b.String()
}
