package caps

import (
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// POSIX permission bit offsets per class.
const (
	otherShift = 0
	groupShift = 3
	ownerShift = 6

	modeRead    = 0o4
	modeWrite   = 0o2
	modeExecute = 0o1
)

// Request is one authorization query against a policy.
type Request struct {
	// Path of the inode being operated on, relative to the
	// filesystem root, without a leading slash.
	Path string

	InodeUID  int64
	InodeGID  int64
	InodeMode uint32 // 9-bit POSIX permission bits

	CallerUID int64
	CallerGID int64
	// CallerGIDList is the caller's supplementary groups; nil when
	// the client did not advertise any.
	CallerGIDList []int64

	Mask Mask

	// NewUID and NewGID are the targets of a chown/chgrp request.
	NewUID int64
	NewGID int64
}

// IsCapable decides whether the policy authorizes the request. Grants
// are scanned in declaration order and the first one that authorizes
// wins; a grant failing one of its gates is skipped, never a
// policy-wide rejection.
func (p *Policy) IsCapable(req Request) bool {
	log.Trace().Caller().Msgf(
		"is_capable inode(path /%s owner %d:%d mode 0%o) by caller %d:%d mask %d new %d:%d cap: %s",
		req.Path, req.InodeUID, req.InodeGID, req.InodeMode,
		req.CallerUID, req.CallerGID, req.Mask, req.NewUID, req.NewGID, p)

	for _, g := range p.Grants {
		if !g.Match.Match(req.Path, req.CallerUID, req.CallerGID, req.CallerGIDList) {
			continue
		}
		if !g.Spec.Allows(req.Mask&(MayRead|MayExecute) != 0, req.Mask&MayWrite != 0) {
			continue
		}

		// Narrow the caller's groups to those this grant vouches
		// for; chgrp targets and the group permission class only
		// consider these.
		var gids []int64
		if slices.Contains(g.Match.GIDs, req.CallerGID) {
			gids = append(gids, req.CallerGID)
		}
		gids = append(gids, lo.Intersect(g.Match.GIDs, req.CallerGIDList)...)
		slices.Sort(gids)

		if req.Mask&MaySetVxattr != 0 && !g.Spec.AllowSetVxattr() {
			continue
		}
		if req.Mask&MaySnapshot != 0 && !g.Spec.AllowSnapshot() {
			continue
		}

		// A grant without a UID constraint trusts the matched
		// client outright: no POSIX mode check.
		if g.Match.UID == UIDAny {
			return true
		}

		if req.Mask&MayChown != 0 {
			// Only the owner may chown, and only to itself.
			if req.NewUID != req.CallerUID || req.InodeUID != req.CallerUID {
				continue
			}
		}
		if req.Mask&MayChgrp != 0 {
			// Only the owner may chgrp, and only to a vouched group.
			if req.InodeUID != req.CallerUID || !slices.Contains(gids, req.NewGID) {
				continue
			}
		}

		var shift uint32
		switch {
		case req.InodeUID == req.CallerUID:
			shift = ownerShift
		case slices.Contains(gids, req.InodeGID):
			shift = groupShift
		default:
			shift = otherShift
		}
		if modeAllows(req.InodeMode, shift, req.Mask) {
			return true
		}
	}

	return false
}

func modeAllows(mode, shift uint32, mask Mask) bool {
	if mask&MayRead != 0 && mode&(modeRead<<shift) == 0 {
		return false
	}
	if mask&MayWrite != 0 && mode&(modeWrite<<shift) == 0 {
		return false
	}
	if mask&MayExecute != 0 && mode&(modeExecute<<shift) == 0 {
		return false
	}
	return true
}

// PathCapable reports whether the client is potentially able to access
// the path. Actual permission depends on identities and modes in the
// full IsCapable.
func (p *Policy) PathCapable(path string) bool {
	for _, g := range p.Grants {
		if g.Match.MatchPath(path) {
			return true
		}
	}
	return false
}
