package registry

import "time"

// DefaultTTL is how long a connection entry lives without a heartbeat.
const DefaultTTL = 2 * time.Hour

// Connection represents one live WebSocket link stored in DynamoDB. A
// connection id maps to exactly one user for its lifetime; a user may own
// any number of connections (multi-device).
type Connection struct {
	ConnectionID string `dynamodbav:"pk" ddb:"hash"`
	UserID       int64  `dynamodbav:"user_id" ddb:"gsi_hash:UserIndex"`
	Endpoint     string `dynamodbav:"endpoint"`
	ConnectedAt  int64  `dynamodbav:"connected_at"`
	LastPingAt   int64  `dynamodbav:"last_ping_at"`
	TTL          int64  `dynamodbav:"ttl"`
}

// Expired reports whether the entry should be treated as stale at the given
// instant, even absent an explicit disconnect.
func (c Connection) Expired(now time.Time) bool {
	return c.TTL != 0 && c.TTL <= now.Unix()
}

// NewConnection builds a fresh registry entry for a connection owned by
// userID, reachable via the given management endpoint.
func NewConnection(connectionID string, userID int64, endpoint string, ttl time.Duration) Connection {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return Connection{
		ConnectionID: connectionID,
		UserID:       userID,
		Endpoint:     endpoint,
		ConnectedAt:  now.Unix(),
		LastPingAt:   now.Unix(),
		TTL:          now.Add(ttl).Unix(),
	}
}
