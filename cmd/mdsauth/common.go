package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/creachadair/command"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/MI-OSiRIS/mdsauth/mdscontrol/types"
)

// Common flag structures that can be embedded

// globalFlags contains flags available to all commands
type globalFlags struct {
	Config string `flag:"config,c,Config file path"`
	Output string `flag:"output,o,Output format (json, yaml, table)"`
}

// Flags binds a flag struct for a command and stashes it in the env.
func Flags(bind func(*flag.FlagSet, interface{}), flags interface{}) func(*command.Env, *flag.FlagSet) {
	return func(env *command.Env, fs *flag.FlagSet) {
		bind(fs, flags)
		env.Config = flags
	}
}

// RequireString rejects an empty required flag value.
func RequireString(val, name string) error {
	if val == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func loadConfig(path string) (*types.Config, error) {
	cfg, err := types.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// outputResult outputs the result in the specified format
func outputResult(result interface{}, overrideText string, format string) error {
	switch format {
	case "json":
		jsonBytes, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(jsonBytes))
	case "yaml":
		yamlBytes, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Print(string(yamlBytes))
	default:
		if overrideText != "" {
			fmt.Println(overrideText)
		} else {
			jsonBytes, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal for display: %w", err)
			}
			fmt.Println(string(jsonBytes))
		}
	}
	return nil
}

// tableStyle returns the default table style for output
func tableStyle() *pterm.TablePrinter {
	return pterm.DefaultTable.WithHasHeader().WithHeaderRowSeparator("-")
}

func boolToString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
