package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"topster/internal/media"
)

var (
	flagPage int
	flagType string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for movies and TV shows",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchRun,
}

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List trending content",
	Args:  cobra.NoArgs,
	RunE:  trendingRun,
}

var recentCmd = &cobra.Command{
	Use:   "recent [movies|tv]",
	Short: "List recently added content",
	Args:  cobra.MaximumNArgs(1),
	RunE:  recentRun,
}

var seasonsCmd = &cobra.Command{
	Use:   "seasons <media-id>",
	Short: "List the seasons of a TV show",
	Args:  cobra.ExactArgs(1),
	RunE:  seasonsRun,
}

var episodesCmd = &cobra.Command{
	Use:   "episodes <season-id>",
	Short: "List the episodes of a season",
	Args:  cobra.ExactArgs(1),
	RunE:  episodesRun,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, trendingCmd, recentCmd} {
		c.Flags().IntVar(&flagPage, "page", 1, "Result page")
	}
	trendingCmd.Flags().StringVarP(&flagType, "type", "t", "", "Only show movies or tv")
}

func searchRun(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	page, err := cli.catalog.Search(cmd.Context(), query, flagPage)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return newPrinter(cmd.OutOrStdout(), flagJSON).page(fmt.Sprintf("Results for %q", query), page)
}

func trendingRun(cmd *cobra.Command, args []string) error {
	page, err := cli.catalog.Trending(cmd.Context(), flagPage)
	if err != nil {
		return fmt.Errorf("getting trending: %w", err)
	}

	if flagType != "" {
		t, err := media.ParseMediaType(flagType)
		if err != nil {
			return err
		}
		page.Results = filterType(page.Results, t)
	}
	return newPrinter(cmd.OutOrStdout(), flagJSON).page("Trending", page)
}

func recentRun(cmd *cobra.Command, args []string) error {
	t := media.Movie
	if len(args) == 1 {
		var err error
		if t, err = media.ParseMediaType(args[0]); err != nil {
			return err
		}
	}

	page, err := cli.catalog.Recent(cmd.Context(), t, flagPage)
	if err != nil {
		return fmt.Errorf("getting recent: %w", err)
	}
	return newPrinter(cmd.OutOrStdout(), flagJSON).page("Recently added", page)
}

func seasonsRun(cmd *cobra.Command, args []string) error {
	seasons, err := cli.catalog.Seasons(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout(), flagJSON).seasons(seasons)
}

func episodesRun(cmd *cobra.Command, args []string) error {
	episodes, err := cli.catalog.Episodes(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout(), flagJSON).episodes(episodes)
}

func filterType(items []media.MediaItem, t media.MediaType) []media.MediaItem {
	out := []media.MediaItem{}
	for _, item := range items {
		if item.Type == t {
			out = append(out, item)
		}
	}
	return out
}
