// Package cmd provides the CLI commands for hwire.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corewire/hwire"
)

type rootOptions struct {
	cfgFile string
	debug   bool
	v       *viper.Viper
}

// load resolves the effective configuration. Flags bound to keys win over
// the environment and the file.
func (o *rootOptions) load(cmd *cobra.Command) (hwire.Config, error) {
	o.v = newViper(o.cfgFile)
	if f := cmd.Flag("debug"); f != nil {
		if err := o.v.BindPFlag("debug", f); err != nil {
			return hwire.Config{}, err
		}
	}
	return loadConfig(o.v)
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "hwire",
		Short: "hwire - HTTP/1.1 client pipeline",
		Long: `hwire sends HTTP/1.1 requests over pooled connections and
streams their entities, decoding gzip, deflate, br and zstd.

Configuration:
  Config is loaded from hwire.yaml in the current directory,
  $HOME/.hwire/, or /etc/hwire/.

  Environment variables override config values with the HWIRE_ prefix.
  Example: HWIRE_READ_TIMEOUT=5s HWIRE_BROTLI_QUALITY=9

Commands:
  get         Fetch a URL
  compress    Brotli-encode stdin
  config      Print the effective configuration
  version     Print version information`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&o.cfgFile, "config", "", "config file (default: ./hwire.yaml)")
	root.PersistentFlags().BoolVar(&o.debug, "debug", false, "trace pipeline states to stderr")

	root.AddCommand(newGetCmd(o), newCompressCmd(o), newConfigCmd(o), newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
