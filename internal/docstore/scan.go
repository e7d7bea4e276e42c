package docstore

import (
	"context"
	"fmt"
)

// Scan walks every document matching q page by page, calling fn once per hit
// in the order the store returns them. q.Size is the page size and q.From the
// starting offset.
//
// Scan stops without error when a page comes back shorter than q.Size, when
// the number of hits seen equals the total the store reported, or when limit
// hits have been delivered (limit <= 0 means no limit). It stops with fn's
// error as soon as fn returns one.
func Scan(ctx context.Context, s Store, q Query, limit int, fn func(Hit) error) error {
	if q.Size <= 0 {
		return fmt.Errorf("scan: invalid page size %d", q.Size)
	}

	seen := 0
	for {
		page, err := s.Search(ctx, q)
		if err != nil {
			return fmt.Errorf("search from %d: %w", q.From, err)
		}

		for _, hit := range page.Hits {
			if err := fn(hit); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}

		if len(page.Hits) < q.Size || int64(seen) >= page.Total {
			return nil
		}
		q.From += q.Size
	}
}
