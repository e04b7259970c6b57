package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "meeflow"}
	root.PersistentFlags().String("network", "", "network")
	SetEnv(root.PersistentFlags(), "network", "MEEFLOW_NETWORK")
	run := &cobra.Command{Use: "run", Short: "execute one transfer", Run: func(*cobra.Command, []string) {}}
	run.Flags().String("amount", "", "USDC amount")
	root.AddCommand(run)
	root.AddCommand(&cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}})
	return root
}

func TestBuildLeafCommand(t *testing.T) {
	s, err := Build(testTree(), "run")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "meeflow run" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if len(s.Flags) != 1 || s.Flags[0].Name != "amount" {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
	if len(s.GlobalFlags) != 1 || s.GlobalFlags[0].Env != "MEEFLOW_NETWORK" {
		t.Fatalf("unexpected global flags: %+v", s.GlobalFlags)
	}
}

func TestBuildRootSkipsHidden(t *testing.T) {
	s, err := Build(testTree(), "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Subcommands) != 1 || s.Subcommands[0].Use != "run" {
		t.Fatalf("unexpected subcommands: %+v", s.Subcommands)
	}
	if len(s.GlobalFlags) != 1 {
		t.Fatalf("expected root persistent flags, got %+v", s.GlobalFlags)
	}
}

func TestBuildUnknownPath(t *testing.T) {
	if _, err := Build(testTree(), "bridge quote"); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
