package app

import (
	"testing"

	"github.com/spf13/cobra"
)

func allCommands() []*cobra.Command {
	return []*cobra.Command{scanCmd, pvcreateCmd, vgcreateCmd, lvcreateCmd, vgckCmd}
}

func TestSubcommandsAreFullyWired(t *testing.T) {
	for _, c := range allCommands() {
		if c.Use == "" {
			t.Fatal("expected every subcommand to declare a Use string")
		}
		if c.RunE == nil {
			t.Fatalf("command %q: expected a RunE function", c.Use)
		}
	}
}

func TestRootCommandDefersSubcommandRegistrationToExecute(t *testing.T) {
	if rootCmd.Use != "lvm2ctl" {
		t.Fatalf("root command Use = %q, want lvm2ctl", rootCmd.Use)
	}
	if len(rootCmd.Commands()) != 0 {
		t.Fatal("expected subcommands to be attached only inside Execute, not at package init")
	}
}
