package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/webget/internal/config"
	"github.com/nao1215/webget/internal/model"
)

// TransferFunc performs one download and reports its outcome. Failures
// travel inside the result; a TransferFunc never aborts the batch.
// Downloader.Download satisfies this signature.
type TransferFunc func(ctx context.Context, req *model.DownloadRequest) model.DownloadResult

// BatchProcessor runs download requests in fixed-size batches. Items
// within a batch run concurrently; the processor joins on the whole
// batch and pauses before issuing the next one, so at most concurrency
// transfers are in flight and the target server gets a breather
// between bursts.
type BatchProcessor struct {
	// transfer performs a single download.
	transfer TransferFunc

	// concurrency is the batch size and the cap on simultaneous
	// transfers.
	concurrency int

	// batchDelay is the pause between consecutive batches.
	batchDelay time.Duration

	// onResult, when set, receives each result as it completes.
	onResult func(result model.DownloadResult, index int)

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the batch size. Values below one are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithBatchDelay sets the pause inserted between consecutive batches.
// Zero disables the pause; negative values are ignored.
func WithBatchDelay(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		if d >= 0 {
			b.batchDelay = d
		}
	}
}

// WithResultCallback registers a function called once per completed
// transfer with the result and its index in the request slice. The
// callback runs on the worker goroutine that finished the transfer, so
// it must be safe for concurrent use.
func WithResultCallback(fn func(result model.DownloadResult, index int)) BatchOption {
	return func(b *BatchProcessor) {
		b.onResult = fn
	}
}

// NewBatchProcessor creates a BatchProcessor around a transfer
// function.
func NewBatchProcessor(transfer TransferFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		transfer:    transfer,
		concurrency: config.DefaultMaxConcurrent,
		batchDelay:  config.DefaultBatchDelay,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch downloads all requests and returns one result per
// request, in request order. A failed transfer fills its result slot
// and never disturbs the rest of the batch.
//
// Cancellation is honored between batches: transfers already in flight
// finish (their own context handling makes that quick), no further
// batch is issued, and the results gathered so far are returned along
// with the context error.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, requests []*model.DownloadRequest) ([]model.DownloadResult, error) {
	bp.logger.Info("starting transfer batches",
		"total", len(requests),
		"concurrency", bp.concurrency,
		"batch_delay", bp.batchDelay,
	)

	start := time.Now()
	results := make([]model.DownloadResult, len(requests))
	processed := 0

	for offset := 0; offset < len(requests); offset += bp.concurrency {
		if offset > 0 && bp.batchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(bp.batchDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			bp.logger.Warn("transfer batches cancelled",
				"done", processed,
				"total", len(requests),
			)
			return results[:processed], err
		}

		end := min(offset+bp.concurrency, len(requests))
		batch := requests[offset:end]

		g := new(errgroup.Group)
		g.SetLimit(bp.concurrency)
		for i, req := range batch {
			i, req := i, req
			g.Go(func() error {
				result := bp.transfer(ctx, req)
				results[offset+i] = result
				if bp.onResult != nil {
					bp.onResult(result, offset+i)
				}
				return nil
			})
		}
		// Workers never return errors; failures live in their results.
		_ = g.Wait()
		processed = end

		bp.logger.Debug("batch complete",
			"batch", offset/bp.concurrency+1,
			"done", processed,
			"total", len(requests),
		)
	}

	succeeded, failed, resumed, bytes := tally(results)
	bp.logger.Info("transfer batches complete",
		"succeeded", succeeded,
		"failed", failed,
		"resumed", resumed,
		"bytes", bytes,
		"elapsed", time.Since(start),
	)

	return results, nil
}

// tally sums the running totals the processor reports when a run
// finishes.
func tally(results []model.DownloadResult) (succeeded, failed, resumed int, bytes int64) {
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
		if r.Resumed {
			resumed++
		}
		bytes += r.Size
	}
	return succeeded, failed, resumed, bytes
}
