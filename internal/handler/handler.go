// Package handler routes API Gateway WebSocket events to the lifecycle
// hooks and the action dispatcher.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/ivossos/growzone-realtime/internal/auth"
	gzcli "github.com/ivossos/growzone-realtime/internal/cli"
	"github.com/ivossos/growzone-realtime/internal/dispatch"
	"github.com/ivossos/growzone-realtime/internal/registry"
)

// Hooks is the connect/disconnect surface.
type Hooks interface {
	OnConnect(ctx context.Context, connectionID, endpoint, token string) (int64, error)
	OnDisconnect(ctx context.Context, connectionID string) (int64, error)
}

// Dispatcher interprets inbound client actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, sender registry.Connection, body string) dispatch.Result
}

// ConnectionGetter resolves the sending connection on $default routes.
type ConnectionGetter interface {
	Get(ctx context.Context, connectionID string) (registry.Connection, error)
}

// Handler handles WebSocket API Gateway events.
type Handler struct {
	Hooks       Hooks
	Dispatcher  Dispatcher
	Connections ConnectionGetter
	Logger      zerolog.Logger
	Metrics     *gzcli.Metrics
}

// HandleEvent routes an API Gateway WebSocket event. Action-level
// rejections return 200 with the machine-readable reason in the body; the
// connection stays open.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	began := time.Now()
	route := req.RequestContext.RouteKey
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", route).
		Logger()

	defer func() {
		if h.Metrics != nil {
			h.Metrics.Timing(ctx, gzcli.ResponseTimeMetric, began, map[gzcli.DimensionName]string{
				gzcli.RouteDimension: route,
			})
		}
	}()

	switch route {
	case "$connect":
		return h.handleConnect(ctx, logger, req)
	case "$disconnect":
		return h.handleDisconnect(ctx, logger, req)
	case "$default":
		return h.handleMessage(ctx, logger, req)
	default:
		logger.Warn().Msg("unknown route")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}
}

func managementEndpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}

func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	token := req.QueryStringParameters["token"]

	userID, err := h.Hooks.OnConnect(ctx, req.RequestContext.ConnectionID, managementEndpoint(req), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return events.APIGatewayProxyResponse{StatusCode: 401, Body: "unauthorized"}, nil
		}
		logger.Error().Err(err).Msg("connect failed")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	logger.Info().Int64("user_id", userID).Msg("connected")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := h.Hooks.OnDisconnect(ctx, req.RequestContext.ConnectionID); err != nil {
		// the peer is already gone; acknowledge regardless
		logger.Error().Err(err).Msg("disconnect cleanup failed")
	}
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	sender, err := h.Connections.Get(ctx, req.RequestContext.ConnectionID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			logger.Warn().Msg("message from unregistered connection")
			return events.APIGatewayProxyResponse{StatusCode: 404, Body: "connection not found"}, nil
		}
		logger.Error().Err(err).Msg("failed to load connection")
		return events.APIGatewayProxyResponse{StatusCode: 500}, nil
	}

	result := h.Dispatcher.Dispatch(ctx, sender, req.Body)
	if !result.OK {
		return events.APIGatewayProxyResponse{StatusCode: 200, Body: result.Reason}, nil
	}
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}
