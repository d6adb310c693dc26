package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"planning-poker/internal/domain"
)

type batchMode int

const (
	batchDelete batchMode = iota
	batchPut
)

func (m batchMode) String() string {
	if m == batchPut {
		return "put"
	}
	return "delete"
}

// PartialBatchError reports a BatchWriteItem call that left some requests
// unprocessed. It matches domain.ErrStoreUnavailable; the unprocessed
// requests stay queued in the buffer.
type PartialBatchError struct {
	Attempted   int
	Unprocessed int
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("repository: %d of %d batched writes unprocessed", e.Unprocessed, e.Attempted)
}

func (e *PartialBatchError) Unwrap() error {
	return domain.ErrStoreUnavailable
}

// BatchBuffer queues write intents of one kind and sends them through
// BatchWriteItem in chunks of at most the batch ceiling. Pushing the
// ceiling-th intent flushes automatically. A buffer is not safe for
// concurrent use.
type BatchBuffer struct {
	api       dynamodbAPI
	tableName string
	mode      batchMode
	size      int
	pending   []types.WriteRequest
	flushed   int
}

func (c *Client) newBuffer(mode batchMode) *BatchBuffer {
	return &BatchBuffer{
		api:       c.api,
		tableName: c.tableName,
		mode:      mode,
		size:      c.opts.batchSize,
		pending:   make([]types.WriteRequest, 0, c.opts.batchSize),
	}
}

// NewDeleteBuffer returns a buffer that accepts only Delete intents.
func (c *Client) NewDeleteBuffer() *BatchBuffer { return c.newBuffer(batchDelete) }

// NewUpdateBuffer returns a buffer that accepts only Put intents, each one a
// full replacement of the stored item.
func (c *Client) NewUpdateBuffer() *BatchBuffer { return c.newBuffer(batchPut) }

// Delete queues removal of the item with the given primary key.
func (b *BatchBuffer) Delete(ctx context.Context, key map[string]types.AttributeValue) error {
	if b.mode != batchDelete {
		return fmt.Errorf("repository: cannot queue delete on a %s buffer", b.mode)
	}
	return b.push(ctx, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
}

// Put queues a full replacement of item.
func (b *BatchBuffer) Put(ctx context.Context, item map[string]types.AttributeValue) error {
	if b.mode != batchPut {
		return fmt.Errorf("repository: cannot queue put on a %s buffer", b.mode)
	}
	return b.push(ctx, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
}

func (b *BatchBuffer) push(ctx context.Context, req types.WriteRequest) error {
	b.pending = append(b.pending, req)
	if len(b.pending) < b.size {
		return nil
	}
	return b.Flush(ctx)
}

// Pending returns the number of queued intents not yet written.
func (b *BatchBuffer) Pending() int { return len(b.pending) }

// Flushed returns the number of intents the store has applied.
func (b *BatchBuffer) Flushed() int { return b.flushed }

// Flush writes every queued intent. On success the buffer is empty. On
// failure the intents not known to be applied remain queued; Flush does not
// retry them itself.
func (b *BatchBuffer) Flush(ctx context.Context) error {
	for len(b.pending) > 0 {
		n := min(b.size, len(b.pending))
		chunk := b.pending[:n]

		out, err := b.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{b.tableName: chunk},
		})
		if err != nil {
			return classify("batch "+b.mode.String(), err)
		}

		var unprocessed []types.WriteRequest
		if out != nil {
			unprocessed = out.UnprocessedItems[b.tableName]
		}
		b.flushed += n - len(unprocessed)

		rest := b.pending[n:]
		b.pending = append(append(make([]types.WriteRequest, 0, len(unprocessed)+len(rest)), unprocessed...), rest...)

		if len(unprocessed) > 0 {
			return fmt.Errorf("repository: batch %s: %w", b.mode, &PartialBatchError{Attempted: n, Unprocessed: len(unprocessed)})
		}
	}
	return nil
}

// IsPartialBatch reports whether err came from a partially applied batch.
func IsPartialBatch(err error) bool {
	var partial *PartialBatchError
	return errors.As(err, &partial)
}
