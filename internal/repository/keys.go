package repository

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"planning-poker/internal/domain"
)

const (
	attrPK = "PK"
	attrSK = "SK"

	roomPrefix       = "ROOM:"
	userPrefix       = "USER:"
	connectionPrefix = "CONNECTION:"

	skRoom       = "ROOM"
	skConnection = "CONNECTION"
)

// Key identifies one item in the table. It is implemented by RoomKey,
// ParticipantKey and ConnectionKey only.
type Key interface {
	PK() string
	SK() string
	isKey()
}

// RoomKey addresses the room item of a partition.
type RoomKey struct {
	RoomID string
}

func (k RoomKey) PK() string { return roomPartition(k.RoomID) }
func (RoomKey) SK() string   { return roomSortKey() }
func (RoomKey) isKey()       {}

// ParticipantKey addresses one participant inside a room partition.
type ParticipantKey struct {
	RoomID  string
	UserKey string
}

func (k ParticipantKey) PK() string { return roomPartition(k.RoomID) }
func (k ParticipantKey) SK() string { return userSortKey(k.UserKey) }
func (ParticipantKey) isKey()       {}

// ConnectionKey addresses a live connection marker.
type ConnectionKey struct {
	ConnectionID string
}

func (k ConnectionKey) PK() string { return connectionPartition(k.ConnectionID) }
func (ConnectionKey) SK() string   { return skConnection }
func (ConnectionKey) isKey()       {}

func roomPartition(roomID string) string {
	return roomPrefix + roomID
}

func roomSortKey() string {
	return skRoom
}

func userSortKey(userKey string) string {
	return userPrefix + userKey
}

func connectionPartition(connectionID string) string {
	return connectionPrefix + connectionID
}

// parseUserKey is the inverse of userSortKey.
func parseUserKey(sortKey string) (string, error) {
	userKey, ok := strings.CutPrefix(sortKey, userPrefix)
	if !ok || userKey == "" {
		return "", fmt.Errorf("%w: sort key %q is not a participant key", domain.ErrMalformedKey, sortKey)
	}
	return userKey, nil
}

func roomIDFromPartition(pk string) (string, error) {
	roomID, ok := strings.CutPrefix(pk, roomPrefix)
	if !ok || roomID == "" {
		return "", fmt.Errorf("%w: partition key %q is not a room partition", domain.ErrMalformedKey, pk)
	}
	return roomID, nil
}

// DecodeKey maps a stored key pair back to its typed form.
func DecodeKey(pk, sk string) (Key, error) {
	switch {
	case strings.HasPrefix(pk, roomPrefix):
		roomID, err := roomIDFromPartition(pk)
		if err != nil {
			return nil, err
		}
		if sk == skRoom {
			return RoomKey{RoomID: roomID}, nil
		}
		userKey, err := parseUserKey(sk)
		if err != nil {
			return nil, err
		}
		return ParticipantKey{RoomID: roomID, UserKey: userKey}, nil
	case strings.HasPrefix(pk, connectionPrefix):
		connectionID := strings.TrimPrefix(pk, connectionPrefix)
		if connectionID == "" || sk != skConnection {
			return nil, fmt.Errorf("%w: %q/%q is not a connection key", domain.ErrMalformedKey, pk, sk)
		}
		return ConnectionKey{ConnectionID: connectionID}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognised partition key %q", domain.ErrMalformedKey, pk)
	}
}

func decodeItemKey(item map[string]types.AttributeValue) (Key, error) {
	return DecodeKey(getStringValue(item[attrPK]), getStringValue(item[attrSK]))
}

func keyAttributes(k Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: k.PK()},
		attrSK: &types.AttributeValueMemberS{Value: k.SK()},
	}
}

// rawKey copies the primary key of an item without interpreting it, so that
// cascades remove items whose sort key this package does not recognise.
func rawKey(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: item[attrPK],
		attrSK: item[attrSK],
	}
}
