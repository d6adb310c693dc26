package repository

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"planning-poker/internal/domain"
)

// timestampLayout keeps millisecond precision fixed so that string order
// equals chronological order; the stale-room scan filters on it.
const timestampLayout = "2006-01-02T15:04:05.000Z"

const (
	attrIsRevealed = "isRevealed"
	attrUpdatedOn  = "updatedOn"
	attrVote       = "vote"
)

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse timestamp %q: %w", s, err)
	}
	return t, nil
}

type roomItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	RoomID     string `dynamodbav:"roomId"`
	HostKey    string `dynamodbav:"hostKey"`
	ValidSizes string `dynamodbav:"validSizes"`
	IsRevealed bool   `dynamodbav:"isRevealed"`
	CreatedOn  string `dynamodbav:"createdOn"`
	UpdatedOn  string `dynamodbav:"updatedOn"`
}

func newRoomItem(room domain.Room) roomItem {
	key := RoomKey{RoomID: room.RoomID}
	return roomItem{
		PK:         key.PK(),
		SK:         key.SK(),
		RoomID:     room.RoomID,
		HostKey:    room.HostKey,
		ValidSizes: domain.JoinSizes(room.ValidSizes),
		IsRevealed: room.IsRevealed,
		CreatedOn:  formatTimestamp(room.CreatedOn),
		UpdatedOn:  formatTimestamp(room.UpdatedOn),
	}
}

func (r roomItem) toDomain() (domain.Room, error) {
	createdOn, err := parseTimestamp(r.CreatedOn)
	if err != nil {
		return domain.Room{}, err
	}
	updatedOn, err := parseTimestamp(r.UpdatedOn)
	if err != nil {
		return domain.Room{}, err
	}
	return domain.Room{
		RoomID:     r.RoomID,
		HostKey:    r.HostKey,
		ValidSizes: domain.SplitSizes(r.ValidSizes),
		IsRevealed: r.IsRevealed,
		CreatedOn:  createdOn,
		UpdatedOn:  updatedOn,
	}, nil
}

type participantItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	RoomID    string `dynamodbav:"roomId"`
	UserKey   string `dynamodbav:"userKey"`
	UserID    string `dynamodbav:"userId"`
	Username  string `dynamodbav:"username"`
	Vote      string `dynamodbav:"vote"`
	CreatedOn string `dynamodbav:"createdOn"`
	UpdatedOn string `dynamodbav:"updatedOn"`
}

func newParticipantItem(p domain.Participant) participantItem {
	key := ParticipantKey{RoomID: p.RoomID, UserKey: p.UserKey}
	return participantItem{
		PK:        key.PK(),
		SK:        key.SK(),
		RoomID:    p.RoomID,
		UserKey:   p.UserKey,
		UserID:    p.UserID,
		Username:  p.Username,
		Vote:      p.Vote,
		CreatedOn: formatTimestamp(p.CreatedOn),
		UpdatedOn: formatTimestamp(p.UpdatedOn),
	}
}

func (p participantItem) toDomain() (domain.Participant, error) {
	createdOn, err := parseTimestamp(p.CreatedOn)
	if err != nil {
		return domain.Participant{}, err
	}
	updatedOn, err := parseTimestamp(p.UpdatedOn)
	if err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{
		RoomID:    p.RoomID,
		UserKey:   p.UserKey,
		UserID:    p.UserID,
		Username:  p.Username,
		Vote:      p.Vote,
		CreatedOn: createdOn,
		UpdatedOn: updatedOn,
	}, nil
}

type connectionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	ConnectionID string `dynamodbav:"connectionId"`
	ConnectedOn  string `dynamodbav:"connectedOn"`
	TTL          int64  `dynamodbav:"ttl"`
}

func marshalItem(op string, v any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("repository: %s marshal: %w", op, err)
	}
	return item, nil
}

func decodeRoom(item map[string]types.AttributeValue) (domain.Room, error) {
	var r roomItem
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return domain.Room{}, fmt.Errorf("repository: unmarshal room: %w", err)
	}
	return r.toDomain()
}

func decodeParticipant(item map[string]types.AttributeValue) (domain.Participant, error) {
	var p participantItem
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return domain.Participant{}, fmt.Errorf("repository: unmarshal participant: %w", err)
	}
	return p.toDomain()
}
