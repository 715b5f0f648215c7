package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ChunkItem is one recipient of a chunk.
type ChunkItem struct {
	Index     int
	Recipient domain.Recipient
}

// SendFunc delivers one item including retries. A non-nil error is fatal
// for the run; item failures are reported in the result.
type SendFunc func(ctx context.Context, item ChunkItem) (domain.SendResult, error)

// ChunkRequest is one call to the batching endpoint.
type ChunkRequest struct {
	CampaignID  string
	Items       []ChunkItem
	Concurrency int
	Send        SendFunc
}

// ChunkSender processes a whole chunk. Results are aligned with Items; an
// entry with an empty Outcome was not attempted. A returned error that is
// not fatal fails every member of the chunk.
type ChunkSender interface {
	SendChunk(ctx context.Context, req ChunkRequest) ([]domain.SendResult, error)
}

// LocalChunkSender fans a chunk out in-process with bounded concurrency.
type LocalChunkSender struct{}

func (LocalChunkSender) SendChunk(ctx context.Context, req ChunkRequest) ([]domain.SendResult, error) {
	results := make([]domain.SendResult, len(req.Items))
	width := req.Concurrency
	if width <= 0 {
		width = 1
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		fatalErr error
	)
	g.SetLimit(width)

	for i, item := range req.Items {
		mu.Lock()
		stop := fatalErr != nil
		mu.Unlock()
		if stop || ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			res, err := req.Send(ctx, item)
			if err != nil {
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, fatalErr
}
