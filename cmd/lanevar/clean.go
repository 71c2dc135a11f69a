package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lanevar/internal/cache"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached classification reports",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func runClean(cmd *cobra.Command, _ []string) error {
	dc, err := cache.Open(cacheApp)
	if err != nil {
		return err
	}
	if err := dc.Clean(); err != nil {
		return err
	}
	if !quiet(cmd) {
		fmt.Fprintf(cmd.OutOrStdout(), "removed cached reports in %s\n", dc.Dir())
	}
	return nil
}
