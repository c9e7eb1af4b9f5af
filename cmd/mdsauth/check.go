package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"

	"github.com/MI-OSiRIS/mdsauth/mdscontrol/caps"
)

// Check command flag structures

type checkFlags struct {
	globalFlags
	Caps      string `flag:"caps,Capability text to evaluate (required)"`
	Path      string `flag:"path,Inode path"`
	InodeUID  int64  `flag:"inode-uid,Inode owner uid"`
	InodeGID  int64  `flag:"inode-gid,Inode owner gid"`
	Mode      string `flag:"mode,default=0644,Inode permission bits (octal)"`
	UID       int64  `flag:"uid,Caller uid"`
	GID       int64  `flag:"gid,Caller gid"`
	GIDs      string `flag:"gids,Comma-separated caller supplementary gids"`
	Mask      string `flag:"mask,default=read,Comma-separated operations (read, write, execute, chown, chgrp, vxattr, snapshot)"`
	NewUID    int64  `flag:"new-uid,Target uid for chown"`
	NewGID    int64  `flag:"new-gid,Target gid for chgrp"`
	PathCheck bool   `flag:"path-only,Only run the cheap path pre-check"`
}

var maskBits = map[string]caps.Mask{
	"read":     caps.MayRead,
	"write":    caps.MayWrite,
	"execute":  caps.MayExecute,
	"chown":    caps.MayChown,
	"chgrp":    caps.MayChgrp,
	"vxattr":   caps.MaySetVxattr,
	"snapshot": caps.MaySnapshot,
}

func parseMask(s string) (caps.Mask, error) {
	var mask caps.Mask
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		bit, ok := maskBits[item]
		if !ok {
			return 0, fmt.Errorf("unknown mask operation %q", item)
		}
		mask |= bit
	}
	if mask == 0 {
		return 0, fmt.Errorf("empty mask")
	}
	return mask, nil
}

func parseGIDList(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var out []int64
	for _, item := range strings.Split(s, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(item), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad gid %q: %w", item, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Check command implementations

func checkCommand(env *command.Env) error {
	flags := env.Config.(*checkFlags)

	if err := RequireString(flags.Caps, "caps"); err != nil {
		return err
	}

	pol, err := caps.ParsePolicy(flags.Caps)
	if err != nil {
		return fmt.Errorf("invalid caps: %w", err)
	}

	path := strings.TrimPrefix(flags.Path, "/")

	if flags.PathCheck {
		return outputResult(map[string]bool{"pathCapable": pol.PathCapable(path)},
			fmt.Sprintf("path capable: %s", boolToString(pol.PathCapable(path))), flags.Output)
	}

	mode, err := strconv.ParseUint(strings.TrimPrefix(flags.Mode, "0o"), 8, 32)
	if err != nil {
		return fmt.Errorf("bad mode %q: %w", flags.Mode, err)
	}
	mask, err := parseMask(flags.Mask)
	if err != nil {
		return err
	}
	gidList, err := parseGIDList(flags.GIDs)
	if err != nil {
		return err
	}

	allowed := pol.IsCapable(caps.Request{
		Path:          path,
		InodeUID:      flags.InodeUID,
		InodeGID:      flags.InodeGID,
		InodeMode:     uint32(mode),
		CallerUID:     flags.UID,
		CallerGID:     flags.GID,
		CallerGIDList: gidList,
		Mask:          mask,
		NewUID:        flags.NewUID,
		NewGID:        flags.NewGID,
	})

	return outputResult(map[string]bool{"allowed": allowed},
		fmt.Sprintf("allowed: %s", boolToString(allowed)), flags.Output)
}

// Check command definitions

func checkCommands() []*command.C {
	return []*command.C{
		{
			Name:     "check",
			Usage:    "--caps <text> [flags]",
			Help:     "Evaluate one authorization request against capability text",
			SetFlags: Flags(flax.MustBind, &checkFlags{}),
			Run:      checkCommand,
		},
	}
}
