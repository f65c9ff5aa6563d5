// Command rrdpoolctl is a thin operator CLI around a *pool.Pool, deliberately
// kept outside the core package. It demonstrates the library against the
// rest of the domain stack — a TOML config, an HTTP introspection surface,
// and Prometheus scraping.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rrdpoolctl:", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:           "rrdpoolctl",
	Short:         "Operate a jrobin RRD handle pool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (optional)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statCmd)
}
