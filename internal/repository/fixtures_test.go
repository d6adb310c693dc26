package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"planning-poker/internal/domain"
	"planning-poker/internal/testfixtures"
)

func roomFixture(t *testing.T, roomID string, updatedOn time.Time) Item {
	t.Helper()
	item, err := marshalItem("fixture", newRoomItem(domain.Room{
		RoomID:     roomID,
		HostKey:    "hk01",
		ValidSizes: domain.DefaultValidSizes(),
		CreatedOn:  updatedOn,
		UpdatedOn:  updatedOn,
	}))
	require.NoError(t, err)
	return item
}

func participantFixture(t *testing.T, roomID, userKey, vote string, at time.Time) Item {
	t.Helper()
	item, err := marshalItem("fixture", newParticipantItem(domain.Participant{
		RoomID:    roomID,
		UserKey:   userKey,
		UserID:    "id-" + userKey,
		Username:  "user " + userKey,
		Vote:      vote,
		CreatedOn: at,
		UpdatedOn: at,
	}))
	require.NoError(t, err)
	return item
}

// seedRoom stores a room with n participants, each of which has voted "5".
func seedRoom(t *testing.T, table *testfixtures.DynamoTable, roomID string, n int, updatedOn time.Time) {
	t.Helper()
	items := []Item{roomFixture(t, roomID, updatedOn)}
	for i := range n {
		items = append(items, participantFixture(t, roomID, fmt.Sprintf("u%03d", i), "5", updatedOn))
	}
	table.Seed(items...)
}

func strAttr(item Item, name string) string {
	return getStringValue(item[name])
}

func boolAttr(item Item, name string) bool {
	b, _ := item[name].(*types.AttributeValueMemberBOOL)
	return b != nil && b.Value
}
