// Package fanout delivers one logical event to all live connections of a
// target user, pruning connections the transport reports gone.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivossos/growzone-realtime/internal/event"
	"github.com/ivossos/growzone-realtime/internal/registry"
	"github.com/ivossos/growzone-realtime/internal/transport"
)

const (
	defaultConcurrency = 50
	defaultSendTimeout = 3 * time.Second
)

// ConnectionSource is the slice of the registry the router needs: the
// user-indexed snapshot and pruning.
type ConnectionSource interface {
	ListByUser(ctx context.Context, userID int64) ([]registry.Connection, error)
	Delete(ctx context.Context, connectionID string) error
}

// Report aggregates the delivery attempts of one DeliverToUser call. The
// counts reflect every connection present in the registry snapshot at the
// time of the read.
type Report struct {
	Attempted int
	Delivered int
	Pruned    int
	Transient int
}

// Router fans events out to a user's connections.
type Router struct {
	Connections ConnectionSource
	Transport   transport.Transport
	Logger      zerolog.Logger
	Concurrency int           // max concurrent sends (default 50)
	SendTimeout time.Duration // per-connection send budget (default 3s)
}

// DeliverToUser pushes the event to every live connection of userID.
// Delivery is best-effort and at-most-once per connection per call: a
// transient failure on one connection is recorded and skipped, never
// retried here and never allowed to abort sends to the other connections.
// Zero live connections is a successful no-op.
func (r *Router) DeliverToUser(ctx context.Context, userID int64, ev event.Outbound) (Report, error) {
	data, err := ev.Marshal()
	if err != nil {
		return Report{}, err
	}

	conns, err := r.Connections.ListByUser(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("listing connections for user %v: %w", userID, err)
	}
	if len(conns) == 0 {
		return Report{}, nil
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var (
		mu     sync.Mutex
		report = Report{Attempted: len(conns)}
	)

	g := &errgroup.Group{}
	g.SetLimit(concurrency)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			outcome := r.send(ctx, conn, data, ev.Type)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case transport.Delivered:
				report.Delivered++
			case transport.Gone:
				report.Pruned++
			default:
				report.Transient++
			}
			return nil
		})
	}
	g.Wait()

	return report, nil
}

// DeliverToConnection pushes the event to one specific connection, applying
// the same timeout and prune-on-gone rules as a fanout send.
func (r *Router) DeliverToConnection(ctx context.Context, conn registry.Connection, ev event.Outbound) (transport.Outcome, error) {
	data, err := ev.Marshal()
	if err != nil {
		return transport.Transient, err
	}
	return r.send(ctx, conn, data, ev.Type), nil
}

func (r *Router) send(ctx context.Context, conn registry.Connection, data []byte, eventType string) transport.Outcome {
	timeout := r.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome, err := r.Transport.Send(sendCtx, conn.Endpoint, conn.ConnectionID, data)
	logger := r.Logger.With().
		Str("connection_id", conn.ConnectionID).
		Int64("user_id", conn.UserID).
		Str("event", eventType).
		Logger()

	switch outcome {
	case transport.Gone:
		logger.Info().Msg("connection gone, pruning")
		// Pruning failure leaves a stale entry for the sweeper; the send
		// outcome is already settled.
		if err := r.Connections.Delete(ctx, conn.ConnectionID); err != nil {
			logger.Error().Err(err).Msg("failed to prune gone connection")
		}
	case transport.Transient:
		logger.Warn().Err(err).Msg("delivery failed")
	}
	return outcome
}
