package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"planning-poker/internal/domain"
)

const (
	// maxBatchSize is the BatchWriteItem ceiling.
	maxBatchSize = 25

	defaultPageSize      = 100
	defaultConnectionTTL = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	clock         func() time.Time
	pageSize      int32
	batchSize     int
	connectionTTL time.Duration
}

// WithLogger sets the logger used for data-integrity warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source used to stamp createdOn/updatedOn.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithPageSize sets the Limit applied to every Query and Scan page.
// Zero leaves paging to the store.
func WithPageSize(n int32) Option {
	return func(o *options) {
		if n >= 0 {
			o.pageSize = n
		}
	}
}

// WithBatchSize lowers the number of writes sent per BatchWriteItem call.
// Values outside 1..25 are ignored.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 && n <= maxBatchSize {
			o.batchSize = n
		}
	}
}

// WithConnectionTTL sets how long a connection marker survives without an
// explicit disconnect.
func WithConnectionTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectionTTL = d
		}
	}
}

// Client wraps the single DynamoDB table holding rooms, participants and
// connections.
type Client struct {
	api       dynamodbAPI
	tableName string
	opts      options
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	o := options{
		logger:        slog.Default(),
		clock:         time.Now,
		pageSize:      defaultPageSize,
		batchSize:     maxBatchSize,
		connectionTTL: defaultConnectionTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{api: api, tableName: tableName, opts: o}, nil
}

// ValidateTable checks that the table exists, is active, and is keyed on
// PK (hash) and SK (range).
func (c *Client) ValidateTable(ctx context.Context) error {
	out, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("repository: ValidateTable: table %s does not exist", c.tableName)
		}
		return classify("ValidateTable", err)
	}
	if out == nil || out.Table == nil {
		return fmt.Errorf("repository: ValidateTable: table %s has no description", c.tableName)
	}
	if out.Table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("repository: ValidateTable: table %s is not active (status: %s)", c.tableName, out.Table.TableStatus)
	}

	want := map[string]types.KeyType{attrPK: types.KeyTypeHash, attrSK: types.KeyTypeRange}
	if len(out.Table.KeySchema) != len(want) {
		return fmt.Errorf("repository: ValidateTable: table %s has %d key attributes, expected %d", c.tableName, len(out.Table.KeySchema), len(want))
	}
	for _, el := range out.Table.KeySchema {
		name := aws.ToString(el.AttributeName)
		if kt, ok := want[name]; !ok || kt != el.KeyType {
			return fmt.Errorf("repository: ValidateTable: table %s has unexpected key %s (%s)", c.tableName, name, el.KeyType)
		}
	}
	return nil
}

// classify wraps a DynamoDB failure with the matching domain sentinel.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("repository: %s: %w: %w", op, domain.ErrConditionFailed, err)
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("repository: %s: %w: %w", op, domain.ErrConditionFailed, err)
			}
		}
		return fmt.Errorf("repository: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}

	if isTransient(err) {
		return fmt.Errorf("repository: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("repository: %s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException",
		"RequestLimitExceeded",
		"ThrottlingException",
		"TransactionConflictException",
		"InternalServerError",
		"ServiceUnavailable":
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer
}

// getStringValue extracts the string value from a DynamoDB AttributeValue.
// It returns an empty string if the AttributeValue is not of type AttributeValueMemberS.
func getStringValue(attr types.AttributeValue) string {
	if s, ok := attr.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
