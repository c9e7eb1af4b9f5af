package main

import (
	"context"
	"fmt"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"

	"github.com/MI-OSiRIS/mdsauth/mdscontrol/idmap"
)

// Idmap command flag structures

type idmapLookupFlags struct {
	globalFlags
	Timeout time.Duration `flag:"timeout,default=30s,Lookup timeout"`
}

// Idmap command implementations

func idmapLookupCommand(env *command.Env) error {
	flags := env.Config.(*idmapLookupFlags)

	if len(env.Args) != 1 {
		return fmt.Errorf("exactly one client name argument is required")
	}
	name := env.Args[0]

	cfg, err := loadConfig(flags.Config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), flags.Timeout)
	defer cancel()

	ids, err := idmap.NewRemapper(cfg).UpdateIDs(ctx, name)
	if err != nil {
		return fmt.Errorf("lookup for %q failed: %w", name, err)
	}

	result := map[string]interface{}{
		"uid":  ids[0],
		"gid":  ids[1],
		"gids": ids[2:],
	}
	return outputResult(result,
		fmt.Sprintf("uid=%d gid=%d gids=%v", ids[0], ids[1], ids[2:]), flags.Output)
}

// Idmap command definitions

func idmapCommands() []*command.C {
	return []*command.C{
		{
			Name:  "idmap",
			Usage: "lookup <name>",
			Help:  "Identity remap commands",
			Commands: []*command.C{
				{
					Name:     "lookup",
					Usage:    "<name>",
					Help:     "Resolve a client name through the configured idmap backends",
					SetFlags: Flags(flax.MustBind, &idmapLookupFlags{}),
					Run:      idmapLookupCommand,
				},
			},
		},
	}
}

// Version command

type versionFlags struct {
	globalFlags
}

func versionCommand(env *command.Env) error {
	flags := env.Config.(*versionFlags)

	versionInfo := map[string]string{
		"version": "dev",
		"commit":  "unknown",
		"date":    "unknown",
	}

	return outputResult(versionInfo,
		fmt.Sprintf("version %s (commit %s, date %s)",
			versionInfo["version"], versionInfo["commit"], versionInfo["date"]), flags.Output)
}

func versionCommands() []*command.C {
	return []*command.C{
		{
			Name:     "version",
			Usage:    "",
			Help:     "Show version information",
			SetFlags: Flags(flax.MustBind, &versionFlags{}),
			Run:      versionCommand,
		},
	}
}
