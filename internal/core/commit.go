package core

// commit.go submits validated rows to an EntityCreator.
//
// Rows are partitioned into batches of BatchSize. Inside a batch a bounded
// worker group creates entities; each row writes its outcome into its own
// slot, so results are attributed to the right row whatever order workers
// finish in. A failed create is recorded and the commit moves on.

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of rows committed between progress reports.
const DefaultBatchSize = 50

// MsgImportCancelled is recorded for rows never attempted because the
// commit context was cancelled.
const MsgImportCancelled = "import cancelled"

// CommitOptions tunes Commit. Zero values select the defaults.
type CommitOptions struct {
	BatchSize   int              // Rows per batch (default 50)
	Concurrency int              // Parallel creates within a batch (default 1)
	OnProgress  ProgressCallback // Called after every batch
}

func (o CommitOptions) withDefaults() CommitOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// Commit creates one entity per row and returns the aggregate result.
// It never returns early: every row ends up counted as successful or failed.
func Commit(ctx context.Context, rows []ValidRow, creator EntityCreator, opts CommitOptions) ImportResult {
	opts = opts.withDefaults()

	result := ImportResult{
		TotalRows: len(rows),
		Errors:    []CommitError{},
	}
	batches := (len(rows) + opts.BatchSize - 1) / opts.BatchSize

	for b := 0; b < batches; b++ {
		start := b * opts.BatchSize
		end := min(start+opts.BatchSize, len(rows))
		batch := rows[start:end]

		outcomes := commitBatch(ctx, batch, creator, opts.Concurrency)
		for i, err := range outcomes {
			if err == nil {
				result.SuccessfulRows++
				continue
			}
			result.FailedRows++
			result.Errors = append(result.Errors, CommitError{
				Row:     batch[i].Row,
				Message: err.Error(),
				Data:    batch[i].Record,
			})
		}

		if opts.OnProgress != nil {
			opts.OnProgress(CommitProgress{
				Batch:      b + 1,
				Batches:    batches,
				Processed:  end,
				Total:      len(rows),
				Successful: result.SuccessfulRows,
				Failed:     result.FailedRows,
			})
		}
	}

	result.Success = result.FailedRows == 0
	return result
}

// commitBatch returns one outcome per row, nil meaning created.
func commitBatch(ctx context.Context, batch []ValidRow, creator EntityCreator, concurrency int) []error {
	outcomes := make([]error, len(batch))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range batch {
		if ctx.Err() != nil {
			outcomes[i] = errImportCancelled
			continue
		}
		i := i
		g.Go(func() error {
			outcomes[i] = createOne(ctx, creator, batch[i].Record)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// createOne calls the creator, turning a panic into a row failure.
func createOne(ctx context.Context, creator EntityCreator, rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("create entity panicked: %v", r)
		}
	}()
	_, err = creator.CreateEntity(ctx, rec)
	return err
}

var errImportCancelled = errors.New(MsgImportCancelled)
