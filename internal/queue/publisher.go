// Package queue hands canonical events to the entitlement worker over SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"tiergate/internal/events"
	"tiergate/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventPublisher sends canonical events to the entitlement events queue. It
// satisfies the webhook handler's Dispatcher.
type EventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher for queueURL.
func NewEventPublisher(client SQSSender, queueURL string, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{client: client, queueURL: queueURL, logger: logger}
}

// Dispatch publishes ev. The send uses a context detached from request
// cancellation so that a client hang-up cannot abort an accepted event.
func (p *EventPublisher) Dispatch(ctx context.Context, ev *events.CanonicalEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal CanonicalEvent: %w", err)
	}
	body, encoding := EncodeBody(raw)

	attrs := map[string]sqsTypes.MessageAttributeValue{
		attrEventKind: {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(ev.Kind)),
		},
	}
	if encoding != "" {
		attrs[attrContentEncoding] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(encoding),
		}
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: attrs,
	}

	out, err := p.client.SendMessage(context.WithoutCancel(ctx), input)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send event to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "entitlement event published",
		"queue_url", p.queueURL,
		"message_id", aws.ToString(out.MessageId),
		"delivery_id", ev.DeliveryID,
		"event_kind", string(ev.Kind),
		"content_encoding", encoding,
		"body_bytes", len(body),
	)
	return nil
}

// DecodeMessage parses an SQS message body produced by Dispatch.
func DecodeMessage(body string, attrs map[string]string) (*events.CanonicalEvent, error) {
	raw, err := DecodeBody(body, attrs[attrContentEncoding])
	if err != nil {
		return nil, err
	}
	var ev events.CanonicalEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("queue: failed to unmarshal CanonicalEvent: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
