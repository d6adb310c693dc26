package repository

import (
	"context"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is one raw table record.
type Item = map[string]types.AttributeValue

// pageSource is satisfied by the SDK's QueryPaginator and ScanPaginator.
type pageSource[T any] interface {
	HasMorePages() bool
	NextPage(ctx context.Context, optFns ...func(*dynamodb.Options)) (T, error)
}

// pages turns a paginator into a lazy, single-pass item sequence. A page is
// fetched only when the consumer has drained the previous one. A failed
// fetch yields one (nil, err) pair and ends the sequence.
func pages[T any](ctx context.Context, op string, src pageSource[T], items func(T) []Item) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for src.HasMorePages() {
			out, err := src.NextPage(ctx)
			if err != nil {
				yield(nil, classify(op, err))
				return
			}
			for _, item := range items(out) {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// queryPartition yields every item stored under one partition key, in
// ascending sort-key order.
func (c *Client) queryPartition(ctx context.Context, pk string) iter.Seq2[Item, error] {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ConsistentRead: aws.Bool(true),
	}
	if c.opts.pageSize > 0 {
		in.Limit = aws.Int32(c.opts.pageSize)
	}
	return pages[*dynamodb.QueryOutput](ctx, "query", dynamodb.NewQueryPaginator(c.api, in), func(out *dynamodb.QueryOutput) []Item {
		return out.Items
	})
}

// scan yields every item of the table matching in's filter. Limit caps the
// number of items evaluated per page, before filtering.
func (c *Client) scan(ctx context.Context, in *dynamodb.ScanInput) iter.Seq2[Item, error] {
	in.TableName = aws.String(c.tableName)
	if in.Limit == nil && c.opts.pageSize > 0 {
		in.Limit = aws.Int32(c.opts.pageSize)
	}
	return pages[*dynamodb.ScanOutput](ctx, "scan", dynamodb.NewScanPaginator(c.api, in), func(out *dynamodb.ScanOutput) []Item {
		return out.Items
	})
}
