package trace

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

type item struct {
	rec Record
	err error
}

// Prefetcher is a Source that parses ahead of the consumer in a separate
// goroutine. Records and parse errors are delivered in trace order through a
// bounded queue.
type Prefetcher struct {
	items  chan item
	group  *errgroup.Group
	cancel context.CancelFunc
}

// Prefetch starts reading src in the background, keeping at most depth
// records queued.
func Prefetch(ctx context.Context, src Source, depth int) *Prefetcher {
	if depth < 1 {
		depth = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	p := &Prefetcher{
		items:  make(chan item, depth),
		group:  group,
		cancel: cancel,
	}

	group.Go(func() error {
		defer close(p.items)
		return p.produce(ctx, src)
	})

	return p
}

func (p *Prefetcher) produce(ctx context.Context, src Source) error {
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		var perr *ParseError
		if err != nil && !errors.As(err, &perr) {
			return err
		}

		select {
		case p.items <- item{rec: rec, err: err}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Next returns the next record, a per-line parse error, or io.EOF.
func (p *Prefetcher) Next() (Record, error) {
	it, ok := <-p.items
	if ok {
		return it.rec, it.err
	}

	if err := p.group.Wait(); err != nil {
		return Record{}, err
	}

	return Record{}, io.EOF
}

// Close stops the producer and waits for it to exit.
func (p *Prefetcher) Close() error {
	p.cancel()

	// Drain so a blocked producer can observe the cancellation.
	for range p.items {
	}

	err := p.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
