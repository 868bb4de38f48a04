package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// APIGateway delivers events through the API Gateway Management API. Clients
// are cached per endpoint since a deployment may span stages.
type APIGateway struct {
	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	// newClient is overridable in tests
	newClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

// NewAPIGateway creates a management API transport.
func NewAPIGateway() *APIGateway {
	return &APIGateway{
		clients: map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI{},
		newClient: func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
			sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
			return apigatewaymanagementapi.New(sess)
		},
	}
}

// Send posts data to the connection. A GoneException (HTTP 410) maps to
// Gone; everything else, including context deadlines, maps to Transient.
func (t *APIGateway) Send(ctx context.Context, endpoint, connectionID string, data []byte) (Outcome, error) {
	client := t.client(endpoint)

	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	if err != nil {
		if isGone(err) {
			return Gone, nil
		}
		return Transient, fmt.Errorf("posting to connection %v: %w", connectionID, err)
	}
	return Delivered, nil
}

func (t *APIGateway) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	t.mu.RLock()
	client, ok := t.clients[endpoint]
	t.mu.RUnlock()
	if ok {
		return client
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if client, ok := t.clients[endpoint]; ok {
		return client
	}
	client = t.newClient(endpoint)
	t.clients[endpoint] = client
	return client
}

// isGone reports whether the error is the management API's authoritative
// dead-connection signal.
func isGone(err error) bool {
	var ae awserr.Error
	if errors.As(err, &ae) && ae.Code() == apigatewaymanagementapi.ErrCodeGoneException {
		return true
	}
	var rf awserr.RequestFailure
	return errors.As(err, &rf) && rf.StatusCode() == http.StatusGone
}
