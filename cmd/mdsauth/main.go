// Command mdsauth is the operator tool for the capability engine:
// validate capability text, evaluate a single authorization request,
// and exercise the identity-remap backends.
package main

import (
	"os"

	"github.com/creachadair/command"
)

func main() {
	root := &command.C{
		Name: "mdsauth",
		Help: "Capability engine tooling for the metadata service",
		Commands: joinCommands(
			capsCommands(),
			checkCommands(),
			idmapCommands(),
			versionCommands(),
			[]*command.C{command.HelpCommand(nil)},
		),
	}

	command.RunOrFail(root.NewEnv(nil), os.Args[1:])
}

func joinCommands(groups ...[]*command.C) []*command.C {
	var out []*command.C
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
