package bamboo

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// VerifyItem is one entry and the bytes it must be verified against.
type VerifyItem struct {
	Entry    []byte
	Payload  []byte
	Backlink []byte
	Lipmaa   []byte
	// SkipPayload verifies the signature and links only, for an entry whose
	// payload is not available.
	SkipPayload bool
}

func (it *VerifyItem) verify() error {
	entry, err := Decode(it.Entry)
	if err != nil {
		return wrap(VerifyDecodeEntry, err)
	}
	return verify(&entry, it.Payload, !it.SkipPayload, it.Backlink, it.Lipmaa)
}

// VerifyBatch verifies independent entries concurrently with at most workers
// goroutines (GOMAXPROCS when workers <= 0). The result at index i is the
// VerifyBytes error for items[i], nil when it verified. Items left unchecked because ctx was
// cancelled report ctx.Err().
func VerifyBatch(ctx context.Context, items []VerifyItem, workers int) []error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]error, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				results[j] = err
			}
			break
		}
		i := i
		g.Go(func() error {
			results[i] = items[i].verify()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
