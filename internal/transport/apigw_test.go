package transport

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/tj/assert"
)

type fakeManagementAPI struct {
	apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
	err   error
	calls int
	last  *apigatewaymanagementapi.PostToConnectionInput
}

func (f *fakeManagementAPI) PostToConnectionWithContext(_ aws.Context, input *apigatewaymanagementapi.PostToConnectionInput, _ ...request.Option) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func newTestTransport(fake *fakeManagementAPI) *APIGateway {
	t := NewAPIGateway()
	t.newClient = func(string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI { return fake }
	return t
}

func TestAPIGatewaySend(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered", func(t *testing.T) {
		fake := &fakeManagementAPI{}
		tr := newTestTransport(fake)

		outcome, err := tr.Send(ctx, "https://api.example.com/prod", "c1", []byte(`{"type":"pong"}`))
		assert.NoError(t, err)
		assert.Equal(t, Delivered, outcome)
		assert.Equal(t, "c1", aws.StringValue(fake.last.ConnectionId))
	})

	t.Run("gone", func(t *testing.T) {
		fake := &fakeManagementAPI{
			err: awserr.New(apigatewaymanagementapi.ErrCodeGoneException, "gone", nil),
		}
		tr := newTestTransport(fake)

		outcome, err := tr.Send(ctx, "https://api.example.com/prod", "c1", nil)
		assert.NoError(t, err)
		assert.Equal(t, Gone, outcome)
	})

	t.Run("410 without typed code", func(t *testing.T) {
		fake := &fakeManagementAPI{
			err: awserr.NewRequestFailure(awserr.New("Unknown", "gone", nil), http.StatusGone, "req-1"),
		}
		tr := newTestTransport(fake)

		outcome, err := tr.Send(ctx, "https://api.example.com/prod", "c1", nil)
		assert.NoError(t, err)
		assert.Equal(t, Gone, outcome)
	})

	t.Run("transient", func(t *testing.T) {
		fake := &fakeManagementAPI{err: fmt.Errorf("connection reset")}
		tr := newTestTransport(fake)

		outcome, err := tr.Send(ctx, "https://api.example.com/prod", "c1", nil)
		assert.Error(t, err)
		assert.Equal(t, Transient, outcome)
	})

	t.Run("client cached per endpoint", func(t *testing.T) {
		fake := &fakeManagementAPI{}
		tr := NewAPIGateway()
		created := 0
		tr.newClient = func(string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
			created++
			return fake
		}

		tr.Send(ctx, "https://a.example.com/prod", "c1", nil)
		tr.Send(ctx, "https://a.example.com/prod", "c2", nil)
		tr.Send(ctx, "https://b.example.com/prod", "c3", nil)
		assert.Equal(t, 2, created)
		assert.Equal(t, 3, fake.calls)
	})
}
