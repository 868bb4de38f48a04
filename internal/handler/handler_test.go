package handler

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/tj/assert"

	"github.com/ivossos/growzone-realtime/internal/auth"
	"github.com/ivossos/growzone-realtime/internal/dispatch"
	"github.com/ivossos/growzone-realtime/internal/registry"
)

type fakeHooks struct {
	connects    []string
	disconnects []string
	connectErr  error
}

func (f *fakeHooks) OnConnect(_ context.Context, connectionID, _, token string) (int64, error) {
	if f.connectErr != nil {
		return 0, f.connectErr
	}
	if token != "good" {
		return 0, fmt.Errorf("rejected: %w", auth.ErrInvalidToken)
	}
	f.connects = append(f.connects, connectionID)
	return 42, nil
}

func (f *fakeHooks) OnDisconnect(_ context.Context, connectionID string) (int64, error) {
	f.disconnects = append(f.disconnects, connectionID)
	return 42, nil
}

type fakeDispatcher struct {
	bodies []string
	result dispatch.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ registry.Connection, body string) dispatch.Result {
	f.bodies = append(f.bodies, body)
	return f.result
}

type fakeGetter struct {
	conn registry.Connection
	err  error
}

func (f *fakeGetter) Get(context.Context, string) (registry.Connection, error) {
	return f.conn, f.err
}

func request(route, connID string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			ConnectionID: connID,
			RouteKey:     route,
			DomainName:   "api.example.com",
			Stage:        "prod",
		},
	}
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("connect accepted", func(t *testing.T) {
		hooks := &fakeHooks{}
		h := &Handler{Hooks: hooks, Logger: zerolog.Nop()}

		req := request("$connect", "c1")
		req.QueryStringParameters = map[string]string{"token": "good"}

		resp, err := h.HandleEvent(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, []string{"c1"}, hooks.connects)
	})

	t.Run("connect rejected credential", func(t *testing.T) {
		h := &Handler{Hooks: &fakeHooks{}, Logger: zerolog.Nop()}

		req := request("$connect", "c1")
		req.QueryStringParameters = map[string]string{"token": "bad"}

		resp, err := h.HandleEvent(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
	})

	t.Run("connect registry failure", func(t *testing.T) {
		hooks := &fakeHooks{connectErr: fmt.Errorf("dynamo down")}
		h := &Handler{Hooks: hooks, Logger: zerolog.Nop()}

		req := request("$connect", "c1")
		req.QueryStringParameters = map[string]string{"token": "good"}

		resp, err := h.HandleEvent(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)
	})

	t.Run("disconnect always acknowledged", func(t *testing.T) {
		hooks := &fakeHooks{}
		h := &Handler{Hooks: hooks, Logger: zerolog.Nop()}

		resp, err := h.HandleEvent(ctx, request("$disconnect", "c1"))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, []string{"c1"}, hooks.disconnects)
	})

	t.Run("message dispatched for known connection", func(t *testing.T) {
		dispatcher := &fakeDispatcher{result: dispatch.Result{OK: true}}
		getter := &fakeGetter{conn: registry.Connection{ConnectionID: "c1", UserID: 42}}
		h := &Handler{Dispatcher: dispatcher, Connections: getter, Logger: zerolog.Nop()}

		req := request("$default", "c1")
		req.Body = `{"action":"ping"}`

		resp, err := h.HandleEvent(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, []string{`{"action":"ping"}`}, dispatcher.bodies)
	})

	t.Run("message rejection keeps connection open", func(t *testing.T) {
		dispatcher := &fakeDispatcher{result: dispatch.Result{Reason: dispatch.ReasonMissingRecipient}}
		getter := &fakeGetter{conn: registry.Connection{ConnectionID: "c1", UserID: 42}}
		h := &Handler{Dispatcher: dispatcher, Connections: getter, Logger: zerolog.Nop()}

		resp, err := h.HandleEvent(ctx, request("$default", "c1"))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, dispatch.ReasonMissingRecipient, resp.Body)
	})

	t.Run("message from unknown connection", func(t *testing.T) {
		getter := &fakeGetter{err: fmt.Errorf("get: %w", registry.ErrNotFound)}
		h := &Handler{Dispatcher: &fakeDispatcher{}, Connections: getter, Logger: zerolog.Nop()}

		resp, err := h.HandleEvent(ctx, request("$default", "c1"))
		assert.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		h := &Handler{Logger: zerolog.Nop()}

		resp, err := h.HandleEvent(ctx, request("$weird", "c1"))
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}
