package repository

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"planning-poker/internal/domain"
)

// PutConnection records a live connection. The item carries a ttl so that
// markers whose disconnect never arrived expire on their own.
func (c *Client) PutConnection(ctx context.Context, connectionID string) (domain.Connection, error) {
	now := c.now()
	key := ConnectionKey{ConnectionID: connectionID}
	item, err := marshalItem("PutConnection", connectionItem{
		PK:           key.PK(),
		SK:           key.SK(),
		ConnectionID: connectionID,
		ConnectedOn:  formatTimestamp(now),
		TTL:          now.Add(c.opts.connectionTTL).Unix(),
	})
	if err != nil {
		return domain.Connection{}, err
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return domain.Connection{}, classify("PutConnection", err)
	}
	return domain.Connection{ConnectionID: connectionID, ConnectedOn: now}, nil
}

// DeleteConnection removes a connection marker. Removing an unknown
// connection succeeds.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	if _, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       keyAttributes(ConnectionKey{ConnectionID: connectionID}),
	}); err != nil {
		return classify("DeleteConnection", err)
	}
	return nil
}
