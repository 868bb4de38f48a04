// Package publish lets server-side collaborators (the REST tier, lifecycle
// hooks) inject events into the realtime delivery stream. The fanout worker
// consumes the stream and resolves the target user to live connections.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kinesis"
	"github.com/aws/aws-sdk-go/service/kinesis/kinesisiface"

	"github.com/ivossos/growzone-realtime/internal/event"
)

// Envelope is the record format on the delivery stream: one event targeted
// at one user.
type Envelope struct {
	UserID int64          `json:"userId"`
	Event  event.Outbound `json:"event"`
}

// Publisher publishes events to the delivery Kinesis stream.
type Publisher struct {
	client     kinesisiface.KinesisAPI
	streamName string
}

// New creates a Publisher.
func New(client kinesisiface.KinesisAPI, streamName string) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
	}
}

// Build creates a Publisher using the standard stream name for the given
// environment.
func Build(env string) *Publisher {
	sess := session.Must(session.NewSession(aws.NewConfig()))
	return New(kinesis.New(sess), StreamName(env))
}

// StreamName returns the Kinesis stream name for the given environment.
func StreamName(env string) string {
	return env + "-growzone-chat-events"
}

// Send publishes an event targeted at userID. The user id is the partition
// key so events for one user stay ordered.
func (p *Publisher) Send(ctx context.Context, userID int64, ev event.Outbound) error {
	data, err := json.Marshal(Envelope{UserID: userID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}

	_, err = p.client.PutRecordWithContext(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		PartitionKey: aws.String(strconv.FormatInt(userID, 10)),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("publishing to kinesis stream %v: %w", p.streamName, err)
	}
	return nil
}

// UserOnline announces that userID came online. Routing the announcement to
// interested users (contacts, open conversations) belongs to the consumer.
func (p *Publisher) UserOnline(ctx context.Context, userID int64) error {
	return p.Send(ctx, userID, event.UserOnline(userID))
}

// UserOffline announces that userID's last connection closed.
func (p *Publisher) UserOffline(ctx context.Context, userID int64) error {
	return p.Send(ctx, userID, event.UserOffline(userID))
}
