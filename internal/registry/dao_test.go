package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/savaki/ddb"
	"github.com/tj/assert"
)

const localEndpoint = "http://localhost:8000"

// withTable runs callback against a throwaway table on DynamoDB Local,
// skipping when no local instance is reachable.
func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
	conn, err := net.DialTimeout("tcp", "localhost:8000", 250*time.Millisecond)
	if err != nil {
		t.Skipf("dynamodb local not available: %v", err)
	}
	conn.Close()

	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint(localEndpoint).
			WithRegion("us-west-2")))
		api       = dynamodb.New(s)
		client    = ddb.New(api)
		tableName = fmt.Sprintf("connections-%v", time.Now().UnixNano())
		table     = client.MustTable(tableName, Connection{})
		dao       = New(api, tableName)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = table.CreateTableIfNotExists(ctx)
	assert.Nil(t, err)
	defer table.DeleteTableIfExists(ctx)

	callback(ctx, dao)
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		conn := NewConnection("c1", 42, "https://example.com/prod", 0)

		t.Run("put and get", func(t *testing.T) {
			assert.Nil(t, dao.Put(ctx, conn))

			got, err := dao.Get(ctx, "c1")
			assert.Nil(t, err)
			assert.EqualValues(t, 42, got.UserID)
			assert.Equal(t, "https://example.com/prod", got.Endpoint)
		})

		t.Run("put is idempotent per connection id", func(t *testing.T) {
			assert.Nil(t, dao.Put(ctx, NewConnection("c1", 42, "https://example.com/prod", 0)))

			conns, err := dao.ListByUser(ctx, 42)
			assert.Nil(t, err)
			assert.Len(t, conns, 1)
		})

		t.Run("list by user", func(t *testing.T) {
			assert.Nil(t, dao.Put(ctx, NewConnection("c2", 42, "https://example.com/prod", 0)))
			assert.Nil(t, dao.Put(ctx, NewConnection("c3", 7, "https://example.com/prod", 0)))

			conns, err := dao.ListByUser(ctx, 42)
			assert.Nil(t, err)
			assert.Len(t, conns, 2)
			for _, c := range conns {
				assert.EqualValues(t, 42, c.UserID)
			}
		})

		t.Run("touch extends ttl", func(t *testing.T) {
			before, err := dao.Get(ctx, "c1")
			assert.Nil(t, err)

			dao.now = func() time.Time { return time.Now().Add(time.Minute) }
			defer func() { dao.now = time.Now }()

			assert.Nil(t, dao.Touch(ctx, "c1"))

			after, err := dao.Get(ctx, "c1")
			assert.Nil(t, err)
			assert.True(t, after.TTL > before.TTL)
			assert.True(t, after.LastPingAt > before.LastPingAt)
		})

		t.Run("touch unknown connection", func(t *testing.T) {
			err := dao.Touch(ctx, "nope")
			assert.True(t, errors.Is(err, ErrNotFound))
		})

		t.Run("expired entries are invisible", func(t *testing.T) {
			stale := NewConnection("c4", 42, "https://example.com/prod", 0)
			stale.TTL = time.Now().Add(-time.Minute).Unix()
			assert.Nil(t, dao.Put(ctx, stale))

			_, err := dao.Get(ctx, "c4")
			assert.True(t, errors.Is(err, ErrNotFound))

			conns, err := dao.ListByUser(ctx, 42)
			assert.Nil(t, err)
			for _, c := range conns {
				assert.NotEqual(t, "c4", c.ConnectionID)
			}
		})

		t.Run("delete expired", func(t *testing.T) {
			pruned, err := dao.DeleteExpired(ctx, time.Now())
			assert.Nil(t, err)
			assert.Equal(t, 1, pruned) // c4 from the previous subtest

			pruned, err = dao.DeleteExpired(ctx, time.Now())
			assert.Nil(t, err)
			assert.Equal(t, 0, pruned)
		})

		t.Run("delete is a no-op when absent", func(t *testing.T) {
			assert.Nil(t, dao.Delete(ctx, "never-existed"))
		})

		t.Run("get unknown connection", func(t *testing.T) {
			_, err := dao.Get(ctx, "never-existed")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	})
}
