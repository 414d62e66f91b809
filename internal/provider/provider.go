// Package provider scrapes content catalogs and resolves their servers
// into playable streams.
package provider

import (
	"context"

	"topster/internal/media"
)

// Catalog is the interface content catalogs implement.
type Catalog interface {
	// Search returns one page of results for a query.
	Search(ctx context.Context, query string, page int) (media.SearchPage, error)

	// Trending returns the trending movies and shows.
	Trending(ctx context.Context, page int) (media.SearchPage, error)

	// Recent returns recently added content of one type.
	Recent(ctx context.Context, t media.MediaType, page int) (media.SearchPage, error)

	// Seasons returns the seasons of a TV show.
	Seasons(ctx context.Context, mediaID string) ([]media.Season, error)

	// Episodes returns the episodes of a season.
	Episodes(ctx context.Context, seasonID string) ([]media.Episode, error)

	// Servers lists streaming servers. id is an episode ID when isEpisode
	// is set, otherwise a movie's media ID.
	Servers(ctx context.Context, id string, isEpisode bool) ([]media.ServerInfo, error)

	// Sources resolves the first server that yields playable streams.
	Sources(ctx context.Context, id string, isEpisode bool) ([]media.VideoSource, error)
}
