package repository

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"planning-poker/internal/testfixtures"
)

func TestPutConnection_StoresTTL(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	c, table := newTableClient(t, clock, WithConnectionTTL(2*time.Hour))

	conn, err := c.PutConnection(context.Background(), "Zx1==")
	require.NoError(t, err)
	require.Equal(t, clock.Now(), conn.ConnectedOn)

	item, ok := table.Item("CONNECTION:Zx1==", "CONNECTION")
	require.True(t, ok)
	require.Equal(t, "Zx1==", strAttr(item, "connectionId"))
	require.Equal(t, "2026-03-02T09:30:00.000Z", strAttr(item, "connectedOn"))
	ttl, ok := item["ttl"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	require.Equal(t, "1772451000", ttl.Value)
}

func TestDeleteConnection_Idempotent(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	c, table := newTableClient(t, clock)
	ctx := context.Background()

	_, err := c.PutConnection(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, c.DeleteConnection(ctx, "c1"))
	require.NoError(t, c.DeleteConnection(ctx, "c1"))
	require.Equal(t, 0, table.Len())
}
