// Package registry maintains the durable mapping from WebSocket connection
// ids to owning users. It is the only persisted state the realtime core
// owns; fanout latency depends on the UserIndex GSI backing ListByUser.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// ErrNotFound indicates the connection has no live registry entry.
var ErrNotFound = errors.New("connection not found")

// DAO provides access to the connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
	ttl       time.Duration

	// now is overridable in tests
	now func() time.Time
}

// New creates a connections DAO against the given table.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
		ttl:       DefaultTTL,
		now:       time.Now,
	}
}

// Put stores a connection record, overwriting any prior entry for the same
// connection id.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	if err := d.table.Put(conn).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to store connection %v: %w", conn.ConnectionID, err)
	}
	return nil
}

// Get retrieves a connection record by id. Entries past their TTL are
// treated as absent; delivery to a guaranteed-dead connection is never
// worth attempting.
func (d *DAO) Get(ctx context.Context, connectionID string) (Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return Connection{}, fmt.Errorf("get connection %v: %w", connectionID, ErrNotFound)
		}
		return Connection{}, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	if conn.Expired(d.now()) {
		return Connection{}, fmt.Errorf("get connection %v: expired: %w", connectionID, ErrNotFound)
	}
	return conn, nil
}

// Delete removes a connection record. Deleting an absent entry is a no-op.
func (d *DAO) Delete(ctx context.Context, connectionID string) error {
	if err := d.table.Delete(connectionID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete connection %v: %w", connectionID, err)
	}
	return nil
}

// Touch records a liveness signal: last_ping_at moves to now and the TTL is
// extended. Returns ErrNotFound if the connection no longer exists.
func (d *DAO) Touch(ctx context.Context, connectionID string) error {
	now := d.now()
	_, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"pk": {S: aws.String(connectionID)},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
		UpdateExpression:    aws.String("SET last_ping_at = :now, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]*string{
			"#ttl": aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": {N: aws.String(fmt.Sprintf("%d", now.Unix()))},
			":ttl": {N: aws.String(fmt.Sprintf("%d", now.Add(d.ttl).Unix()))},
		},
	})
	if err != nil {
		var ae awserr.Error
		if errors.As(err, &ae) && ae.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return fmt.Errorf("touch connection %v: %w", connectionID, ErrNotFound)
		}
		return fmt.Errorf("failed to touch connection %v: %w", connectionID, err)
	}
	return nil
}

// ListByUser returns all live connections owned by userID via the UserIndex
// GSI. Expired entries are filtered out; order is not significant.
func (d *DAO) ListByUser(ctx context.Context, userID int64) ([]Connection, error) {
	var all []Connection
	err := d.table.Query("#UserID = ?", userID).
		IndexName("UserIndex").
		FindAllWithContext(ctx, &all)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections for user %v: %w", userID, err)
	}

	now := d.now()
	live := all[:0]
	for _, conn := range all {
		if !conn.Expired(now) {
			live = append(live, conn)
		}
	}
	return live, nil
}

// DeleteExpired removes every entry whose TTL has passed and returns the
// number pruned. Meant for the scheduled sweeper; deployments with native
// DynamoDB TTL enabled on the ttl attribute rarely find anything here.
func (d *DAO) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(d.tableName),
		FilterExpression:     aws.String("#ttl <= :now"),
		ProjectionExpression: aws.String("pk"),
		ExpressionAttributeNames: map[string]*string{
			"#ttl": aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":now": {N: aws.String(fmt.Sprintf("%d", now.Unix()))},
		},
	}

	var pruned int
	var scanErr error
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		for _, item := range page.Items {
			pk := item["pk"]
			if pk == nil || pk.S == nil {
				continue
			}
			if err := d.Delete(ctx, *pk.S); err != nil {
				scanErr = err
				return false
			}
			pruned++
		}
		return true
	})
	if err != nil {
		return pruned, fmt.Errorf("failed to scan expired connections: %w", err)
	}
	if scanErr != nil {
		return pruned, scanErr
	}
	return pruned, nil
}
