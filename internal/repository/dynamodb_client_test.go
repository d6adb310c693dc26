package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"planning-poker/internal/domain"
	"planning-poker/internal/testfixtures"
)

// fakeDynamo serves everything from an in-memory table but lets a test
// replace DescribeTable.
type fakeDynamo struct {
	*testfixtures.DynamoTable
	describeOut *dynamodb.DescribeTableOutput
	describeErr error
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return f.describeOut, f.describeErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustNewClient(t *testing.T, api dynamodbAPI, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(api, "test-table", opts...)
	require.NoError(t, err)
	return c
}

func newTableClient(t *testing.T, clock *testfixtures.Clock, opts ...Option) (*Client, *testfixtures.DynamoTable) {
	t.Helper()
	table := testfixtures.NewDynamoTable()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return mustNewClient(t, table, opts...), table
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "test-table")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(testfixtures.NewDynamoTable(), " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestNew_Options(t *testing.T) {
	c := mustNewClient(t, testfixtures.NewDynamoTable(),
		WithPageSize(7),
		WithBatchSize(10),
		WithBatchSize(99),
		WithConnectionTTL(time.Hour),
	)
	require.Equal(t, int32(7), c.opts.pageSize)
	require.Equal(t, 10, c.opts.batchSize)
	require.Equal(t, time.Hour, c.opts.connectionTTL)
}

func TestValidateTable_HappyPath(t *testing.T) {
	c := mustNewClient(t, testfixtures.NewDynamoTable())
	require.NoError(t, c.ValidateTable(context.Background()))
}

func TestValidateTable_Failures(t *testing.T) {
	active := func(schema ...types.KeySchemaElement) *dynamodb.DescribeTableOutput {
		return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
			TableStatus: types.TableStatusActive,
			KeySchema:   schema,
		}}
	}
	cases := []struct {
		name string
		out  *dynamodb.DescribeTableOutput
		err  error
		msg  string
	}{
		{name: "missing table", err: &types.ResourceNotFoundException{}, msg: "does not exist"},
		{name: "describe error", err: errors.New("boom"), msg: "boom"},
		{
			name: "not active",
			out:  &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: types.TableStatusCreating}},
			msg:  "not active",
		},
		{
			name: "simple key",
			out:  active(types.KeySchemaElement{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash}),
			msg:  "key attributes",
		},
		{
			name: "wrong names",
			out: active(
				types.KeySchemaElement{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
				types.KeySchemaElement{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
			),
			msg: "unexpected key",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := mustNewClient(t, &fakeDynamo{DynamoTable: testfixtures.NewDynamoTable(), describeOut: tc.out, describeErr: tc.err})
			err := c.ValidateTable(context.Background())
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "conditional check", err: &types.ConditionalCheckFailedException{}, want: domain.ErrConditionFailed},
		{
			name: "transaction condition",
			err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: aws.String("None")},
				{Code: aws.String("ConditionalCheckFailed")},
			}},
			want: domain.ErrConditionFailed,
		},
		{
			name: "transaction throttled",
			err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
				{Code: aws.String("ThrottlingError")},
			}},
			want: domain.ErrStoreUnavailable,
		},
		{name: "throughput", err: &types.ProvisionedThroughputExceededException{}, want: domain.ErrStoreUnavailable},
		{name: "request limit", err: &types.RequestLimitExceeded{}, want: domain.ErrStoreUnavailable},
		{name: "server fault", err: &smithy.GenericAPIError{Code: "Whatever", Fault: smithy.FaultServer}, want: domain.ErrStoreUnavailable},
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: domain.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("Op", tc.err)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, tc.err)
			require.Contains(t, err.Error(), "repository: Op")
		})
	}
}

func TestClassify_PermanentError(t *testing.T) {
	cause := &smithy.GenericAPIError{Code: "ValidationException", Fault: smithy.FaultClient}
	err := classify("Op", cause)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	require.NotErrorIs(t, err, domain.ErrConditionFailed)
	require.Nil(t, classify("Op", nil))
}

func TestTimestamp_FixedPrecision(t *testing.T) {
	ts := time.Date(2026, 2, 25, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	require.Equal(t, "2026-02-25T09:00:00.000Z", formatTimestamp(ts))

	earlier := formatTimestamp(time.Date(2026, 2, 25, 9, 59, 59, 999_000_000, time.UTC))
	later := formatTimestamp(time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC))
	require.Less(t, earlier, later)

	parsed, err := parseTimestamp("2026-02-25T09:00:00.120Z")
	require.NoError(t, err)
	require.Equal(t, 120*time.Millisecond, time.Duration(parsed.Nanosecond()))

	_, err = parseTimestamp("yesterday")
	require.Error(t, err)
}
