package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"planning-poker/internal/domain"
)

// PutRoom writes a new room item stamped with the current time. An existing
// item with the same key is replaced.
func (c *Client) PutRoom(ctx context.Context, room domain.Room) (domain.Room, error) {
	now := c.now()
	room.CreatedOn = now
	room.UpdatedOn = now
	room.Participants = nil

	item, err := marshalItem("PutRoom", newRoomItem(room))
	if err != nil {
		return domain.Room{}, err
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return domain.Room{}, classify("PutRoom", err)
	}
	return room, nil
}

// RoomExists performs a point read of the room item.
func (c *Client) RoomExists(ctx context.Context, roomID string) (bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(c.tableName),
		Key:                  keyAttributes(RoomKey{RoomID: roomID}),
		ProjectionExpression: aws.String(attrPK),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return false, classify("RoomExists", err)
	}
	return out != nil && len(out.Item) > 0, nil
}

// GetRoom loads the room item and every participant in its partition.
// Items whose key or body cannot be decoded are logged and skipped.
func (c *Client) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var (
		room         domain.Room
		found        bool
		participants []domain.Participant
	)
	for item, err := range c.queryPartition(ctx, roomPartition(roomID)) {
		if err != nil {
			return domain.Room{}, fmt.Errorf("repository: GetRoom: %w", err)
		}
		key, err := decodeItemKey(item)
		if err != nil {
			c.warnSkipped("GetRoom", item, err)
			continue
		}
		switch key.(type) {
		case RoomKey:
			r, err := decodeRoom(item)
			if err != nil {
				return domain.Room{}, fmt.Errorf("repository: GetRoom: %w", err)
			}
			room, found = r, true
		case ParticipantKey:
			p, err := decodeParticipant(item)
			if err != nil {
				c.warnSkipped("GetRoom", item, err)
				continue
			}
			participants = append(participants, p)
		default:
			c.warnSkipped("GetRoom", item, fmt.Errorf("%w: unexpected %T in room partition", domain.ErrMalformedKey, key))
		}
	}
	if !found {
		return domain.Room{}, fmt.Errorf("repository: GetRoom %s: %w", roomID, domain.ErrNotFound)
	}
	room.Participants = participants
	return room, nil
}

// AddParticipant writes a participant and bumps the room's updatedOn in one
// transaction. The room must still exist, otherwise nothing is written and
// the error matches domain.ErrConditionFailed.
func (c *Client) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	now := c.now()
	p.CreatedOn = now
	p.UpdatedOn = now
	p.Vote = ""

	item, err := marshalItem("AddParticipant", newParticipantItem(p))
	if err != nil {
		return domain.Participant{}, err
	}
	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      item,
			}},
			{Update: c.touchRoom(p.RoomID, now)},
		},
	})
	if err != nil {
		return domain.Participant{}, classify("AddParticipant", err)
	}
	return p, nil
}

// SetVote stores vote for an existing participant and bumps the room's
// updatedOn. A missing participant or room yields domain.ErrConditionFailed.
func (c *Client) SetVote(ctx context.Context, roomID, userKey, vote string) error {
	now := c.now()
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:           aws.String(c.tableName),
				Key:                 keyAttributes(ParticipantKey{RoomID: roomID, UserKey: userKey}),
				UpdateExpression:    aws.String("SET #vote = :vote, #updatedOn = :now"),
				ConditionExpression: aws.String("attribute_exists(PK)"),
				ExpressionAttributeNames: map[string]string{
					"#vote":      attrVote,
					"#updatedOn": attrUpdatedOn,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":vote": &types.AttributeValueMemberS{Value: vote},
					":now":  &types.AttributeValueMemberS{Value: formatTimestamp(now)},
				},
			}},
			{Update: c.touchRoom(roomID, now)},
		},
	})
	if err != nil {
		return classify("SetVote", err)
	}
	return nil
}

func (c *Client) touchRoom(roomID string, now time.Time) *types.Update {
	return &types.Update{
		TableName:           aws.String(c.tableName),
		Key:                 keyAttributes(RoomKey{RoomID: roomID}),
		UpdateExpression:    aws.String("SET #updatedOn = :now"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#updatedOn": attrUpdatedOn,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: formatTimestamp(now)},
		},
	}
}

// SetCardsRevealed flips the room's isRevealed flag. Hiding also clears the
// vote of every participant in the partition; revealing leaves votes alone.
// The writes go out as replacement puts in batches and are not atomic
// across items.
func (c *Client) SetCardsRevealed(ctx context.Context, roomID string, isRevealed bool) error {
	now := &types.AttributeValueMemberS{Value: formatTimestamp(c.now())}
	buf := c.NewUpdateBuffer()
	found := false

	// "ROOM" sorts before "USER:", so an orphaned partition never reaches
	// the participant branch.
	for item, err := range c.queryPartition(ctx, roomPartition(roomID)) {
		if err != nil {
			return fmt.Errorf("repository: SetCardsRevealed: %w", err)
		}
		key, err := decodeItemKey(item)
		if err != nil {
			c.warnSkipped("SetCardsRevealed", item, err)
			continue
		}
		switch key.(type) {
		case RoomKey:
			found = true
			item[attrIsRevealed] = &types.AttributeValueMemberBOOL{Value: isRevealed}
		case ParticipantKey:
			if isRevealed || !found {
				continue
			}
			item[attrVote] = &types.AttributeValueMemberS{Value: ""}
		default:
			continue
		}
		item[attrUpdatedOn] = now
		if err := buf.Put(ctx, item); err != nil {
			return fmt.Errorf("repository: SetCardsRevealed: %w", err)
		}
	}
	if !found {
		return fmt.Errorf("repository: SetCardsRevealed %s: %w", roomID, domain.ErrNotFound)
	}
	if err := buf.Flush(ctx); err != nil {
		return fmt.Errorf("repository: SetCardsRevealed: %w", err)
	}
	return nil
}

// DeleteRoom removes every item in the room's partition and returns how many
// were deleted. Deleting an absent room deletes nothing and succeeds.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) (int, error) {
	buf := c.NewDeleteBuffer()
	for item, err := range c.queryPartition(ctx, roomPartition(roomID)) {
		if err != nil {
			return buf.Flushed(), fmt.Errorf("repository: DeleteRoom: %w", err)
		}
		if err := buf.Delete(ctx, rawKey(item)); err != nil {
			return buf.Flushed(), fmt.Errorf("repository: DeleteRoom: %w", err)
		}
	}
	if err := buf.Flush(ctx); err != nil {
		return buf.Flushed(), fmt.Errorf("repository: DeleteRoom: %w", err)
	}
	return buf.Flushed(), nil
}

// StaleRoomIDs yields the id of every room whose updatedOn is strictly
// before cutoff.
func (c *Client) StaleRoomIDs(ctx context.Context, cutoff time.Time) iter.Seq2[string, error] {
	in := &dynamodb.ScanInput{
		FilterExpression:     aws.String("SK = :sk AND #updatedOn < :cutoff"),
		ProjectionExpression: aws.String(attrPK),
		ExpressionAttributeNames: map[string]string{
			"#updatedOn": attrUpdatedOn,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk":     &types.AttributeValueMemberS{Value: roomSortKey()},
			":cutoff": &types.AttributeValueMemberS{Value: formatTimestamp(cutoff)},
		},
	}
	return func(yield func(string, error) bool) {
		for item, err := range c.scan(ctx, in) {
			if err != nil {
				yield("", fmt.Errorf("repository: StaleRoomIDs: %w", err))
				return
			}
			roomID, err := roomIDFromPartition(getStringValue(item[attrPK]))
			if err != nil {
				c.warnSkipped("StaleRoomIDs", item, err)
				continue
			}
			if !yield(roomID, nil) {
				return
			}
		}
	}
}

func (c *Client) now() time.Time {
	return c.opts.clock().UTC().Truncate(time.Millisecond)
}

func (c *Client) warnSkipped(op string, item Item, err error) {
	reason := "malformed_key"
	if !errors.Is(err, domain.ErrMalformedKey) {
		reason = "decode_error"
	}
	c.opts.logger.Warn("skipping item",
		"op", op,
		"reason", reason,
		"pk", getStringValue(item[attrPK]),
		"sk", getStringValue(item[attrSK]),
		"err", err,
	)
}
