// package tasks implements playlist generation orchestration.
//
// The core abstraction is Engine, which drives the end-to-end flow: fetch the
// liked-songs corpus, obtain playlist suggestions from the completion API,
// resolve suggested songs to platform track identifiers, then create and
// populate playlists. All platform calls funnel through a single [queue.Queue].
package tasks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/models"
	"github.com/desertthunder/mixgen/internal/queue"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/session"
)

const (
	// searchBatchSize bounds concurrent track-resolution work per the search
	// API's request ceiling.
	searchBatchSize = 20

	// topTrackPool is how many of an artist's top tracks the fallback picks
	// from at random.
	topTrackPool = 5

	// fallbackMarket is the market used for artist top-track lookups.
	fallbackMarket = "US"
)

// Resolver maps suggested songs to platform track identifiers.
type Resolver struct {
	service services.Streaming
	queue   *queue.Queue
	logger  *log.Logger

	// pick selects an index in [0, n); swapped out in tests.
	pick func(n int) int
}

// NewResolver creates a Resolver submitting work through the given queue.
func NewResolver(service services.Streaming, q *queue.Queue, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		service: service,
		queue:   q,
		logger:  logger,
		pick:    rand.IntN,
	}
}

// Resolve maps songs to a same-length slice of track URIs.
//
// Unresolved entries are empty strings: a song absent from the catalog, or
// whose resolution errored, never aborts the rest of its batch. Batches are
// submitted concurrently; the queue serializes the underlying API calls.
func (r *Resolver) Resolve(ctx context.Context, tok *session.Token, songs []models.Song) []string {
	results := make([]string, len(songs))

	var wg sync.WaitGroup
	for _, batch := range partition(len(songs), searchBatchSize) {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				uri, err := r.resolveOne(ctx, tok, songs[i])
				if err != nil {
					r.logger.Warn("failed to resolve song",
						"title", songs[i].Title, "artist", songs[i].Artist, "err", err)
					continue
				}
				results[i] = uri
			}
		}(batch.start, batch.end)
	}
	wg.Wait()

	return results
}

// resolveOne attempts an exact title+artist search, falling back to a random
// pick among the artist's top tracks. Returns "" when the catalog has nothing.
func (r *Resolver) resolveOne(ctx context.Context, tok *session.Token, song models.Song) (string, error) {
	search, err := queue.Await[*services.SearchResult](r.queue.Submit(ctx, func(ctx context.Context) (any, error) {
		return r.service.SearchTrack(ctx, tok, song.Title, song.Artist)
	}))
	if err != nil {
		return "", err
	}

	if search.Total > 0 && len(search.Tracks) > 0 {
		return search.Tracks[0].URI, nil
	}

	artist, err := queue.Await[*services.Artist](r.queue.Submit(ctx, func(ctx context.Context) (any, error) {
		return r.service.SearchArtist(ctx, tok, song.Artist)
	}))
	if err != nil {
		return "", err
	}
	if artist == nil {
		return "", nil
	}

	tracks, err := queue.Await[[]services.Track](r.queue.Submit(ctx, func(ctx context.Context) (any, error) {
		return r.service.ArtistTopTracks(ctx, tok, artist.ID, fallbackMarket)
	}))
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", nil
	}

	pool := min(topTrackPool, len(tracks))
	return tracks[r.pick(pool)].URI, nil
}

type span struct {
	start, end int
}

// partition splits [0, n) into consecutive spans of at most size.
func partition(n, size int) []span {
	if size <= 0 {
		panic(fmt.Sprintf("invalid batch size %d", size))
	}

	var spans []span
	for start := 0; start < n; start += size {
		spans = append(spans, span{start: start, end: min(start+size, n)})
	}
	return spans
}
