package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pool "github.com/comdata/jrobin"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Build a pool from the config, print its counters and exit",
	RunE:  runStat,
}

func runStat(cmd *cobra.Command, args []string) error {
	cfg := pool.DefaultConfig()
	if configPath != "" {
		loaded, err := pool.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	p := pool.New(cfg.Options()...)
	defer p.Close()

	fmt.Print(p.Dump(true))
	return nil
}
