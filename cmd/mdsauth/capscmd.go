package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/pterm/pterm"

	"github.com/MI-OSiRIS/mdsauth/mdscontrol/caps"
)

// Caps command flag structures

type capsValidateFlags struct {
	globalFlags
	File string `flag:"file,f,Read capability text from file instead of the argument"`
}

// grantOutput is the structured rendering of one grant.
type grantOutput struct {
	Spec string  `json:"spec"  yaml:"spec"`
	Path string  `json:"path,omitempty" yaml:"path,omitempty"`
	UID  *int64  `json:"uid,omitempty"  yaml:"uid,omitempty"`
	GIDs []int64 `json:"gids,omitempty" yaml:"gids,omitempty"`
}

type capsOutput struct {
	Caps          string        `json:"caps"  yaml:"caps"`
	AllowAll      bool          `json:"allowAll" yaml:"allowAll"`
	IdmapRequired bool          `json:"idmapRequired" yaml:"idmapRequired"`
	Grants        []grantOutput `json:"grants" yaml:"grants"`
}

func policyOutput(pol *caps.Policy) capsOutput {
	out := capsOutput{
		Caps:          pol.String(),
		AllowAll:      pol.AllowAll(),
		IdmapRequired: pol.IdmapRequired(),
	}
	for _, g := range pol.Grants {
		og := grantOutput{Spec: g.Spec.String(), Path: g.Match.Path}
		if g.Match.UID != caps.UIDAny {
			uid := g.Match.UID
			og.UID = &uid
			og.GIDs = g.Match.GIDs
		}
		out.Grants = append(out.Grants, og)
	}
	return out
}

// Caps command implementations

func capsValidateCommand(env *command.Env) error {
	flags := env.Config.(*capsValidateFlags)

	var text string
	switch {
	case flags.File != "":
		raw, err := os.ReadFile(flags.File)
		if err != nil {
			return fmt.Errorf("cannot read caps file: %w", err)
		}
		text = strings.TrimSpace(string(raw))
	case len(env.Args) == 1:
		text = env.Args[0]
	default:
		return fmt.Errorf("exactly one caps-text argument is required")
	}

	pol, err := caps.ParsePolicy(text)
	if err != nil {
		return fmt.Errorf("invalid caps: %w", err)
	}

	out := policyOutput(pol)
	if flags.Output == "" || flags.Output == "table" {
		rows := pterm.TableData{{"SPEC", "PATH", "UID", "GIDS"}}
		for _, g := range out.Grants {
			uid, gids := "any", ""
			if g.UID != nil {
				uid = strconv.FormatInt(*g.UID, 10)
				gids = gidsToString(g.GIDs)
			}
			rows = append(rows, []string{g.Spec, "/" + g.Path, uid, gids})
		}
		fmt.Println(out.Caps)
		fmt.Printf("idmap required: %s\n", boolToString(out.IdmapRequired))
		return tableStyle().WithData(rows).Render()
	}
	return outputResult(out, "", flags.Output)
}

func gidsToString(gids []int64) string {
	parts := make([]string, len(gids))
	for i, g := range gids {
		parts[i] = strconv.FormatInt(g, 10)
	}
	return strings.Join(parts, ",")
}

// Caps command definitions

func capsCommands() []*command.C {
	return []*command.C{
		{
			Name:     "validate",
			Usage:    "<caps-text>",
			Help:     "Parse capability text and print the resulting policy",
			SetFlags: Flags(flax.MustBind, &capsValidateFlags{}),
			Run:      capsValidateCommand,
		},
	}
}
