package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvAnnotation names the flag annotation holding the environment variable
// that sets the same value.
const EnvAnnotation = "meeflow_env"

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	GlobalFlags []FlagSchema    `json:"global_flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Usage   string `json:"usage"`
	Default string `json:"default,omitempty"`
	Env     string `json:"env,omitempty"`
}

// Build describes the command at commandPath below root. Global flags are
// listed once, on the command the walk starts from.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	for _, part := range strings.Fields(strings.TrimSpace(commandPath)) {
		next, ok := findChild(cmd, part)
		if !ok {
			return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	s := serialize(cmd)
	s.GlobalFlags = collect(cmd.InheritedFlags())
	if cmd == root {
		s.GlobalFlags = collect(root.PersistentFlags())
	}
	return s, nil
}

// SetEnv records env as the environment variable behind flag.
func SetEnv(flags *pflag.FlagSet, flag, env string) {
	_ = flags.SetAnnotation(flag, EnvAnnotation, []string{env})
}

func findChild(cmd *cobra.Command, name string) (*cobra.Command, bool) {
	for _, c := range cmd.Commands() {
		if c.Name() == name || slices.Contains(c.Aliases, name) {
			return c, true
		}
	}
	return nil, false
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:  strings.TrimSpace(cmd.CommandPath()),
		Use:   cmd.Use,
		Short: cmd.Short,
		Flags: collect(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func collect(flags *pflag.FlagSet) []FlagSchema {
	var items []FlagSchema
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		item := FlagSchema{
			Name:    f.Name,
			Type:    f.Value.Type(),
			Usage:   f.Usage,
			Default: f.DefValue,
		}
		if env := f.Annotations[EnvAnnotation]; len(env) > 0 {
			item.Env = env[0]
		}
		items = append(items, item)
	})
	return items
}
