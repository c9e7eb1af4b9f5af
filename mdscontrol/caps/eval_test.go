package caps

import (
	"testing"
)

func mustParse(t *testing.T, text string) *Policy {
	t.Helper()
	pol, err := ParsePolicy(text)
	if err != nil {
		t.Fatalf("ParsePolicy(%q): %v", text, err)
	}
	return pol
}

func TestIsCapable(t *testing.T) {
	tests := []struct {
		name string
		caps string
		req  Request
		want bool
	}{
		{
			name: "owner-class-read-write",
			caps: "allow rw path=/foo uid=1000 gids=100,200",
			req: Request{
				Path: "foo/bar", InodeUID: 1000, InodeGID: 100, InodeMode: 0o600,
				CallerUID: 1000, CallerGID: 100, Mask: MayRead | MayWrite,
			},
			want: true,
		},
		{
			name: "uid-mismatch-rejects-grant",
			caps: "allow rw path=/foo uid=1000 gids=100,200",
			req: Request{
				Path: "foo/bar", InodeUID: 1000, InodeGID: 100, InodeMode: 0o600,
				CallerUID: 1001, CallerGID: 100, Mask: MayRead | MayWrite,
			},
			want: false,
		},
		{
			name: "prefix-boundary-food-does-not-match-foo",
			caps: "allow rw path=/foo uid=1000 gids=100,200",
			req: Request{
				Path: "food/x", InodeUID: 1000, InodeGID: 100, InodeMode: 0o600,
				CallerUID: 1000, CallerGID: 100, Mask: MayRead | MayWrite,
			},
			want: false,
		},
		{
			name: "prefix-matches-exact-path",
			caps: "allow rw path=/foo uid=1000",
			req: Request{
				Path: "foo", InodeUID: 1000, InodeGID: 100, InodeMode: 0o600,
				CallerUID: 1000, CallerGID: 100, Mask: MayRead,
			},
			want: true,
		},
		{
			name: "trailing-slash-prefix-matches-children-only",
			caps: "allow rw path=/foo/",
			req: Request{
				Path: "foo", InodeUID: 1, InodeGID: 1, InodeMode: 0o777,
				CallerUID: 1, CallerGID: 1, Mask: MayRead,
			},
			want: false,
		},
		{
			name: "wildcard-spec-allows-vxattr",
			caps: "allow * path=/",
			req: Request{
				Path: "x", InodeUID: 1, InodeGID: 1, InodeMode: 0,
				CallerUID: 2, CallerGID: 2, Mask: MaySetVxattr,
			},
			want: true,
		},
		{
			name: "rw-spec-denies-vxattr",
			caps: "allow rw path=/",
			req: Request{
				Path: "x", InodeUID: 1, InodeGID: 1, InodeMode: 0,
				CallerUID: 2, CallerGID: 2, Mask: MaySetVxattr,
			},
			want: false,
		},
		{
			name: "rws-spec-allows-snapshot",
			caps: "allow rws uid=1000",
			req: Request{
				Path: "x", InodeUID: 1000, InodeGID: 1, InodeMode: 0o700,
				CallerUID: 1000, CallerGID: 1, Mask: MaySnapshot,
			},
			want: true,
		},
		{
			name: "rw-spec-denies-snapshot",
			caps: "allow rw uid=1000",
			req: Request{
				Path: "x", InodeUID: 1000, InodeGID: 1, InodeMode: 0o700,
				CallerUID: 1000, CallerGID: 1, Mask: MaySnapshot,
			},
			want: false,
		},
		{
			name: "chown-to-self-allowed",
			caps: "allow rw uid=1000",
			req: Request{
				Path: "x", InodeUID: 1000, InodeGID: 1, InodeMode: 0o600,
				CallerUID: 1000, CallerGID: 1, Mask: MayChown | MayWrite,
				NewUID: 1000,
			},
			want: true,
		},
		{
			name: "chown-to-other-denied",
			caps: "allow rw uid=1000",
			req: Request{
				Path: "x", InodeUID: 1000, InodeGID: 1, InodeMode: 0o600,
				CallerUID: 1000, CallerGID: 1, Mask: MayChown | MayWrite,
				NewUID: 1001,
			},
			want: false,
		},
		{
			name: "chown-of-foreign-inode-denied",
			caps: "allow rw uid=1000",
			req: Request{
				Path: "x", InodeUID: 2000, InodeGID: 1, InodeMode: 0o666,
				CallerUID: 1000, CallerGID: 1, Mask: MayChown | MayWrite,
				NewUID: 1000,
			},
			want: false,
		},
		{
			name: "chgrp-to-vouched-group-allowed",
			caps: "allow rw uid=1000 gids=100,200",
			req: Request{
				Path: "x", InodeUID: 1000, InodeGID: 100, InodeMode: 0o600,
				CallerUID: 1000, CallerGID: 100, CallerGIDList: []int64{200},
				Mask: MayChgrp | MayWrite, NewGID: 200,
			},
			want: true,
		},
		{
			name: "chgrp-to-unvouched-group-denied",
			caps: "allow rw uid=1000 gids=100,200",
			req: Request{
				Path: "x", InodeUID: 1000, InodeGID: 100, InodeMode: 0o600,
				CallerUID: 1000, CallerGID: 100, CallerGIDList: []int64{200},
				Mask: MayChgrp | MayWrite, NewGID: 300,
			},
			want: false,
		},
		{
			name: "chgrp-of-foreign-inode-denied",
			caps: "allow rw uid=1000 gids=100",
			req: Request{
				Path: "x", InodeUID: 2000, InodeGID: 100, InodeMode: 0o660,
				CallerUID: 1000, CallerGID: 100, Mask: MayChgrp, NewGID: 100,
			},
			want: false,
		},
		{
			name: "group-class-uses-vouched-gids",
			caps: "allow r uid=1000 gids=100",
			req: Request{
				Path: "x", InodeUID: 2000, InodeGID: 100, InodeMode: 0o040,
				CallerUID: 1000, CallerGID: 100, Mask: MayRead,
			},
			want: true,
		},
		{
			name: "group-class-mode-missing-bit",
			caps: "allow r uid=1000 gids=100",
			req: Request{
				Path: "x", InodeUID: 2000, InodeGID: 100, InodeMode: 0o004,
				CallerUID: 1000, CallerGID: 100, Mask: MayRead,
			},
			want: false,
		},
		{
			name: "other-class-when-no-vouched-gids",
			caps: "allow r uid=1000",
			req: Request{
				Path: "x", InodeUID: 2000, InodeGID: 100, InodeMode: 0o004,
				CallerUID: 1000, CallerGID: 100, Mask: MayRead,
			},
			want: true,
		},
		{
			name: "other-class-mode-missing-bit",
			caps: "allow r uid=1000",
			req: Request{
				Path: "x", InodeUID: 2000, InodeGID: 100, InodeMode: 0o040,
				CallerUID: 1000, CallerGID: 100, Mask: MayRead,
			},
			want: false,
		},
		{
			name: "uid-any-skips-mode-check",
			caps: "allow rw path=/foo",
			req: Request{
				Path: "foo/deep", InodeUID: 5, InodeGID: 5, InodeMode: 0,
				CallerUID: 9, CallerGID: 9, Mask: MayRead | MayWrite,
			},
			want: true,
		},
		{
			name: "read-spec-implies-execute",
			caps: "allow r uid=1000",
			req: Request{
				Path: "bin/tool", InodeUID: 1000, InodeGID: 1, InodeMode: 0o500,
				CallerUID: 1000, CallerGID: 1, Mask: MayExecute,
			},
			want: true,
		},
		{
			name: "read-spec-denies-write",
			caps: "allow r path=/a, allow rw path=/b",
			req: Request{
				Path: "a/file", InodeUID: 1, InodeGID: 1, InodeMode: 0o777,
				CallerUID: 1, CallerGID: 1, Mask: MayWrite,
			},
			want: false,
		},
		{
			name: "later-grant-authorizes",
			caps: "allow r path=/a, allow rw path=/b",
			req: Request{
				Path: "b/file", InodeUID: 1, InodeGID: 1, InodeMode: 0o777,
				CallerUID: 1, CallerGID: 1, Mask: MayWrite,
			},
			want: true,
		},
		{
			name: "supplementary-gid-list-satisfies-match",
			caps: "allow r uid=1000 gids=4000",
			req: Request{
				Path: "x", InodeUID: 2000, InodeGID: 4000, InodeMode: 0o040,
				CallerUID: 1000, CallerGID: 100, CallerGIDList: []int64{4000},
				Mask: MayRead,
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pol := mustParse(t, tt.caps)
			if got := pol.IsCapable(tt.req); got != tt.want {
				t.Errorf("IsCapable(%+v) = %v, want %v", tt.req, got, tt.want)
			}
		})
	}
}

func TestSetAllowAll(t *testing.T) {
	pol := mustParse(t, "allow r path=/narrow uid=1")
	pol.SetAllowAll()

	if !pol.AllowAll() {
		t.Fatal("AllowAll() = false after SetAllowAll")
	}

	// Even a request that fails every gate of a normal grant passes.
	req := Request{
		Path: "anywhere", InodeUID: 1, InodeGID: 1, InodeMode: 0,
		CallerUID: 2, CallerGID: 2,
		Mask:   MayRead | MayWrite | MayChown | MaySetVxattr | MaySnapshot,
		NewUID: 999,
	}
	if !pol.IsCapable(req) {
		t.Error("IsCapable() = false under the wildcard policy")
	}

	pol.SetAllowAll()
	if len(pol.Grants) != 1 || !pol.AllowAll() {
		t.Error("SetAllowAll is not idempotent")
	}
}

func TestPathCapable(t *testing.T) {
	pol := mustParse(t, "allow r path=/foo uid=9999, allow rw path=/bar/")

	tests := []struct {
		path string
		want bool
	}{
		{"foo", true},
		{"foo/x", true},
		{"food", false},
		{"bar/x", true},
		{"bar", false},
		{"elsewhere", false},
	}
	for _, tt := range tests {
		// Identity and mode are irrelevant to the pre-check.
		if got := pol.PathCapable(tt.path); got != tt.want {
			t.Errorf("PathCapable(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if !mustParse(t, "allow r").PathCapable("anything") {
		t.Error("unconstrained grant must path-match everything")
	}
}

func TestSetIdentity(t *testing.T) {
	pol := mustParse(t, "allow rw path=/home uid=1 gids=2, allow r")
	pol.SetIdentity(5000, []int64{6000, 7000})

	for i, g := range pol.Grants {
		if g.Match.UID != 5000 {
			t.Errorf("grant %d uid = %d, want 5000", i, g.Match.UID)
		}
		if len(g.Match.GIDs) != 2 || g.Match.GIDs[0] != 6000 || g.Match.GIDs[1] != 7000 {
			t.Errorf("grant %d gids = %v, want [6000 7000]", i, g.Match.GIDs)
		}
	}

	// Paths survive the identity rewrite.
	if pol.Grants[0].Match.Path != "home" {
		t.Errorf("path = %q, want %q", pol.Grants[0].Match.Path, "home")
	}
}
