package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"topster/internal/hls"
	"topster/internal/httputil"
	"topster/internal/media"
	"topster/internal/subtitle"
)

var (
	flagEpisode bool
	flagNoSubs  bool
	flagSubsDir string
	flagQuality string
)

var serversCmd = &cobra.Command{
	Use:   "servers <id>",
	Short: "List streaming servers for a movie or episode",
	Args:  cobra.ExactArgs(1),
	RunE:  serversRun,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources <id>",
	Short: "Resolve a movie or episode to playable streams",
	Long: `Resolve a movie (media ID) or an episode (--episode, episode ID) to
direct stream URLs. Servers are tried in order, preferred server first,
until one yields a stream.`,
	Args: cobra.ExactArgs(1),
	RunE: sourcesRun,
}

func init() {
	for _, c := range []*cobra.Command{serversCmd, sourcesCmd} {
		c.Flags().BoolVarP(&flagEpisode, "episode", "e", false, "The ID is an episode ID")
	}
	sourcesCmd.Flags().BoolVarP(&flagNoSubs, "no-subs", "n", false, "Skip subtitle selection")
	sourcesCmd.Flags().StringVar(&flagSubsDir, "subs-dir", "", "Download the chosen subtitle into this directory")
	sourcesCmd.Flags().StringVarP(&flagQuality, "quality", "q", "", "Pick a variant from the master playlist: 360 | 480 | 720 | 1080")
}

func serversRun(cmd *cobra.Command, args []string) error {
	servers, err := cli.catalog.Servers(cmd.Context(), args[0], flagEpisode)
	if err != nil {
		return err
	}
	return newPrinter(cmd.OutOrStdout(), flagJSON).servers(servers)
}

func sourcesRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sources, err := cli.catalog.Sources(ctx, args[0], flagEpisode)
	if err != nil {
		return fmt.Errorf("resolving streams: %w", err)
	}
	res := streamResult{Sources: sources}

	if flagQuality != "" && len(sources) > 0 && len(sources[0].Sources) > 0 {
		picked, err := pickVariant(ctx, cli.client, sources[0].Sources[0], flagQuality)
		if err != nil {
			cli.log.Warn("quality selection failed", zap.Error(err))
		} else {
			res.Selected = &picked
		}
	}

	if !flagNoSubs && len(sources) > 0 && len(sources[0].Sources) > 0 {
		first := sources[0].Sources[0]
		res.Subtitle = subtitle.BestMatch(first.Subtitles, cli.cfg.SubsLanguage)
		if res.Subtitle == nil && len(first.Subtitles) > 0 {
			cli.log.Info("no subtitle for language",
				zap.String("language", cli.cfg.SubsLanguage),
				zap.Strings("available", subtitle.Languages(first.Subtitles)))
		}
		if res.Subtitle != nil && flagSubsDir != "" {
			res.SubFile, err = subtitle.Download(ctx, cli.client, *res.Subtitle, first.Referer, flagSubsDir)
			if err != nil {
				return err
			}
		}
	}

	return newPrinter(cmd.OutOrStdout(), flagJSON).streams(res)
}

// pickVariant fetches the master playlist behind info and returns the
// variant closest to quality without going over it.
func pickVariant(ctx context.Context, client *httputil.Client, info media.VideoInfo, quality string) (media.VideoInfo, error) {
	if !strings.Contains(info.URL, ".m3u8") {
		return info, nil
	}
	content, err := client.FetchText(ctx, info.URL, httputil.Options{Referer: info.Referer})
	if err != nil {
		return media.VideoInfo{}, fmt.Errorf("fetching master playlist: %w", err)
	}
	if !hls.IsMaster(content) {
		return info, nil
	}

	variants, err := hls.ParseMaster(content, info.URL)
	if err != nil {
		return media.VideoInfo{}, err
	}
	v, ok := hls.SelectBest(variants, quality)
	if !ok {
		return info, nil
	}

	picked := info
	picked.URL = v.URL
	picked.Quality = v.Quality()
	return picked, nil
}
