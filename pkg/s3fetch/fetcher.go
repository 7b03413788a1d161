package s3fetch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ObjectFetcher downloads whole objects. *Client implements it.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// FetchAll downloads every object in uris with at most concurrency
// requests in flight. Results are in input order.
func FetchAll(ctx context.Context, f ObjectFetcher, uris []string, concurrency int) ([][]byte, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	type location struct{ bucket, key string }
	locs := make([]location, len(uris))
	for i, uri := range uris {
		bucket, key, err := ParseObject(uri)
		if err != nil {
			return nil, err
		}
		locs[i] = location{bucket, key}
	}

	out := make([][]byte, len(uris))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, loc := range locs {
		g.Go(func() error {
			data, err := f.FetchObject(ctx, loc.bucket, loc.key)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", uris[i], err)
			}
			out[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("wait for downloads: %w", err)
	}
	return out, nil
}
