// Package app wires cmd/lvm2ctl's cobra command tree together, mirroring
// cmd/topolvm-controller/app/root.go and pkg/topolvm-node/cmd/root.go's
// RunE/PreRunE structure: subcommand flags are registered on init, the
// root command's persistent flags and subcommands are added in Execute,
// PersistentPreRunE loads the config file into the flag set before any
// subcommand body runs, and Execute is main's only entry point.
package app

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/lvm2go/lvm2core/internal/toolcontext"
)

var config struct {
	configFile  string
	development bool
	logLevel    string
}

// tc is the bootstrapped tool context every subcommand's RunE reaches
// for; it is nil until rootCmd.PersistentPreRunE has run.
var tc *toolcontext.ToolContext

var rootCmd = &cobra.Command{
	Use:   "lvm2ctl",
	Short: "Illustrative CLI over the lvm2core metadata library",
	Long: `lvm2ctl is a thin harness that exercises the toolcontext bootstrap
sequence end-to-end: scan, pvcreate, vgcreate, lvcreate and vgck each
drive one slice of the library, the way the original tools/*.c
commands drive liblvm2app — without reimplementing that dispatch
protocol in full.`,
}

// Execute adds every subcommand and runs the root command. It is called
// exactly once, from main.main.
func Execute() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&config.configFile, "config", "lvm2core.yaml", "the file containing lvm2core configuration settings (yaml/json/toml, searched in LVM_SYSTEM_DIR, /etc/lvm2core, and .)")
	fs.BoolVar(&config.development, "development", false, "use a human-readable development logger instead of the production JSON sink")
	fs.StringVar(&config.logLevel, "log-level", "info", "zap level name (debug, info, warn, error)")

	goflags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(goflags)
	fs.AddGoFlagSet(goflags)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return bootstrap(fs)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if tc == nil {
			return nil
		}
		return tc.Destroy()
	}

	rootCmd.AddCommand(scanCmd, pvcreateCmd, vgcreateCmd, lvcreateCmd, vgckCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the config tree the same way loadConfigFileIntoFlagSet
// does, then hands it to toolcontext.Bootstrap.
func bootstrap(fs *pflag.FlagSet) error {
	systemDir := toolcontext.SystemDirFromEnv()

	v := viper.New()
	cfg, err := toolcontext.LoadConfig(v, fs, systemDir)
	if err != nil {
		return err
	}
	cfg.Global.SystemDir = systemDir
	cfg.Log.Development = config.development
	if config.logLevel != "" {
		cfg.Log.Level = config.logLevel
	}

	built, err := toolcontext.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	tc = built
	return nil
}
