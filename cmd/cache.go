package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"topster/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the catalog cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached catalog response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return clearCache(cmd.Context(), cmd.OutOrStdout(), cli.cache, cli.cfg.Cache.Backend)
	},
}

// clearCache empties c. Only the sqlite backend outlives the process.
func clearCache(ctx context.Context, out io.Writer, c *cache.Cache, backend string) error {
	switch {
	case c == nil:
		fmt.Fprintln(out, "Cache is disabled.")
		return nil
	case backend != "sqlite":
		fmt.Fprintln(out, "The in-memory cache only lives for a single run; nothing persistent to clear.")
		return nil
	}
	if err := c.Clear(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	fmt.Fprintln(out, "Cache cleared.")
	return nil
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
