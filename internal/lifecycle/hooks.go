// Package lifecycle handles the connect and disconnect edges of a WebSocket
// connection: credential verification, registry bookkeeping and presence
// announcements.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivossos/growzone-realtime/internal/auth"
	"github.com/ivossos/growzone-realtime/internal/registry"
)

// Registry is the slice of the connection registry the hooks need.
type Registry interface {
	Put(ctx context.Context, conn registry.Connection) error
	Get(ctx context.Context, connectionID string) (registry.Connection, error)
	Delete(ctx context.Context, connectionID string) error
	ListByUser(ctx context.Context, userID int64) ([]registry.Connection, error)
}

// Presence receives online/offline transitions. Nil disables broadcasts;
// announcement failures are logged, never fatal to the lifecycle event.
type Presence interface {
	UserOnline(ctx context.Context, userID int64) error
	UserOffline(ctx context.Context, userID int64) error
}

// Hooks wires connect/disconnect handling.
type Hooks struct {
	Registry Registry
	Verifier auth.Verifier
	Presence Presence
	ConnTTL  time.Duration
	Logger   zerolog.Logger
}

// OnConnect verifies the credential and registers the connection. Returns
// the owning user id on success; auth.ErrInvalidToken covers every
// credential failure. Reconnecting with the same connection id overwrites
// the prior entry rather than duplicating it.
func (h *Hooks) OnConnect(ctx context.Context, connectionID, endpoint, token string) (int64, error) {
	logger := h.Logger.With().Str("connection_id", connectionID).Logger()

	userID, err := h.Verifier.Verify(ctx, token)
	if err != nil {
		logger.Warn().Err(err).Msg("credential rejected")
		if errors.Is(err, auth.ErrInvalidToken) {
			return 0, err
		}
		return 0, fmt.Errorf("verifying credential: %w", err)
	}

	// Snapshot presence before registering; Put would always show >= 1.
	existing, err := h.Registry.ListByUser(ctx, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("presence check failed")
		existing = nil // register anyway, skip the online broadcast
	}

	conn := registry.NewConnection(connectionID, userID, endpoint, h.ConnTTL)
	if err := h.Registry.Put(ctx, conn); err != nil {
		return 0, fmt.Errorf("registering connection %v: %w", connectionID, err)
	}

	logger.Info().Int64("user_id", userID).Msg("connection established")

	if h.Presence != nil && len(existing) == 0 {
		if err := h.Presence.UserOnline(ctx, userID); err != nil {
			logger.Warn().Err(err).Msg("failed to announce user online")
		}
	}
	return userID, nil
}

// OnDisconnect removes the connection's registry entry and returns the
// owning user id. An absent entry means the disconnect was already handled
// elsewhere; that is a successful no-op returning 0. When the entry removed
// was the user's last live connection, userOffline is announced — checked
// with a fresh ListByUser after the delete so multi-device users never get
// a false offline broadcast.
func (h *Hooks) OnDisconnect(ctx context.Context, connectionID string) (int64, error) {
	logger := h.Logger.With().Str("connection_id", connectionID).Logger()

	conn, err := h.Registry.Get(ctx, connectionID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			logger.Debug().Msg("disconnect for unknown connection")
			return 0, nil
		}
		return 0, fmt.Errorf("looking up connection %v: %w", connectionID, err)
	}

	if err := h.Registry.Delete(ctx, connectionID); err != nil {
		return 0, fmt.Errorf("deleting connection %v: %w", connectionID, err)
	}

	logger.Info().Int64("user_id", conn.UserID).Msg("connection closed")

	if h.Presence != nil {
		remaining, err := h.Registry.ListByUser(ctx, conn.UserID)
		if err != nil {
			logger.Warn().Err(err).Msg("presence re-check failed")
		} else if len(remaining) == 0 {
			if err := h.Presence.UserOffline(ctx, conn.UserID); err != nil {
				logger.Warn().Err(err).Msg("failed to announce user offline")
			}
		}
	}
	return conn.UserID, nil
}
