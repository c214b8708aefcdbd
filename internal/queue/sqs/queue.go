// Package sqs implements the queue contract over an Amazon SQS queue, or any
// service speaking the SQS API such as LocalStack.
//
// SQS carries text, so bodies are base64 encoded on Enqueue and decoded on
// Dequeue. The queue itself must already exist.
package sqs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"dos-queue/internal/config"
	"dos-queue/internal/dispatch"
	"dos-queue/internal/queue"
)

// MaxBodyBytes is the SQS limit on an encoded message body.
const MaxBodyBytes = 256 * 1024

// MaxWaitTime is the longest long poll SQS accepts.
const MaxWaitTime = 20 * time.Second

const healthTimeout = 5 * time.Second

// API is the subset of the SQS client used by Queue. A *sqs.Client
// satisfies it.
type API interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue is a session on one SQS queue. Every SDK call runs on the shared
// dispatch pool.
type Queue struct {
	client   API
	cfg      config.SQSConfig
	queueURL string
	open     bool
	waitTime int32
	pool     *dispatch.Pool
	logger   *slog.Logger
}

// New creates an unopened session that issues calls on client through pool.
// Dequeue long polls for blockTimeout rounded up to whole seconds, at most
// MaxWaitTime.
func New(client API, cfg *config.SQSConfig, blockTimeout time.Duration, pool *dispatch.Pool, logger *slog.Logger) *Queue {
	return &Queue{
		client:   client,
		cfg:      *cfg,
		waitTime: waitSeconds(blockTimeout),
		pool:     pool,
		logger:   logger,
	}
}

func waitSeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > MaxWaitTime {
		d = MaxWaitTime
	}
	return int32((d + time.Second - 1) / time.Second)
}

// NewClient builds the SQS client shared by every session of a process, for
// the configured region, endpoint and credentials. Without explicit
// credentials the default AWS chain is used; without an endpoint the AWS
// resolver picks it.
func NewClient(ctx context.Context, cfg *config.SQSConfig) (*sqs.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := cfg.Endpoint()
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Client returns the client the session runs on.
func (q *Queue) Client() API {
	return q.client
}

// Open resolves the queue URL from its name when no URL is configured.
func (q *Queue) Open(ctx context.Context) error {
	if q.open {
		return nil
	}

	url := q.cfg.QueueURL
	if url == "" {
		err := q.pool.Run(ctx, func(ctx context.Context) error {
			out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(q.cfg.QueueName)})
			if err != nil {
				return err
			}
			url = aws.ToString(out.QueueUrl)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to resolve queue url for %s: %w", q.cfg.QueueName, err)
		}
	}

	q.open = true
	q.queueURL = url
	q.logger.Debug("sqs session opened", "queue_url", url)
	return nil
}

// Close ends the session. The shared client is left alone.
func (q *Queue) Close() error {
	q.open = false
	return nil
}

// QueueURL returns the resolved queue URL, or "" before Open.
func (q *Queue) QueueURL() string {
	return q.queueURL
}

// IsHealthy checks that the queue can be looked up.
func (q *Queue) IsHealthy(ctx context.Context) bool {
	if !q.open {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	err := q.pool.Run(ctx, func(ctx context.Context) error {
		if q.cfg.QueueName != "" {
			_, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(q.cfg.QueueName)})
			return err
		}
		_, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
			QueueUrl:       aws.String(q.queueURL),
			AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
		})
		return err
	})
	if err != nil {
		q.logger.Warn("sqs health check failed", "error", err)
		return false
	}
	return true
}

// Enqueue sends msg base64 encoded and returns the SQS message id.
func (q *Queue) Enqueue(ctx context.Context, msg []byte) (string, error) {
	if !q.open {
		return "", queue.ErrNotOpen
	}

	body := base64.StdEncoding.EncodeToString(msg)
	if len(body) > MaxBodyBytes {
		return "", fmt.Errorf("%w: encoded body is %d bytes", queue.ErrMessageTooLarge, len(body))
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	}
	if q.cfg.IsFIFO() {
		in.MessageGroupId = aws.String(q.cfg.MessageGroupID)
		in.MessageDeduplicationId = aws.String(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}

	var id string
	err := q.pool.Run(ctx, func(ctx context.Context) error {
		out, err := q.client.SendMessage(ctx, in)
		if err != nil {
			return err
		}
		id = aws.ToString(out.MessageId)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return id, nil
}

// Dequeue receives at most one message, long polling for the block timeout.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	if !q.open {
		return nil, queue.ErrNotOpen
	}

	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.waitTime,
	}
	if q.cfg.VisibilityTimeout > 0 {
		in.VisibilityTimeout = q.cfg.VisibilityTimeout
	}

	var msgs []types.Message
	err := q.pool.Run(ctx, func(ctx context.Context) error {
		out, err := q.client.ReceiveMessage(ctx, in)
		if err != nil {
			return err
		}
		msgs = out.Messages
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	m := msgs[0]
	body, err := base64.StdEncoding.DecodeString(aws.ToString(m.Body))
	if err != nil {
		// Not something Enqueue produced; it would fail every redelivery.
		q.logger.Warn("dropping message with undecodable body",
			"id", aws.ToString(m.MessageId),
			"error", err,
		)
		if err := q.Acknowledge(ctx, aws.ToString(m.ReceiptHandle)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &queue.Delivery{
		ID:       aws.ToString(m.MessageId),
		Body:     body,
		AckToken: aws.ToString(m.ReceiptHandle),
	}, nil
}

// Acknowledge deletes the message identified by its receipt handle. Handles
// SQS rejects as invalid or expired are treated as already acknowledged.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	if !q.open {
		return queue.ErrNotOpen
	}
	if token == "" {
		return nil
	}

	err := q.pool.Run(ctx, func(ctx context.Context) error {
		_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(q.queueURL),
			ReceiptHandle: aws.String(token),
		})
		return err
	})
	if err != nil {
		if isStaleReceipt(err) {
			q.logger.Debug("ignoring ack for unknown receipt handle", "error", err)
			return nil
		}
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Stats reports the approximate visible and in-flight message counts.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	if !q.open {
		return queue.Stats{}, queue.ErrNotOpen
	}

	var attrs map[string]string
	err := q.pool.Run(ctx, func(ctx context.Context) error {
		out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
			QueueUrl: aws.String(q.queueURL),
			AttributeNames: []types.QueueAttributeName{
				types.QueueAttributeNameApproximateNumberOfMessages,
				types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
			},
		})
		if err != nil {
			return err
		}
		attrs = out.Attributes
		return nil
	})
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to get queue attributes: %w", err)
	}

	backlog, err := attrInt(attrs, types.QueueAttributeNameApproximateNumberOfMessages)
	if err != nil {
		return queue.Stats{}, err
	}
	inFlight, err := attrInt(attrs, types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)
	if err != nil {
		return queue.Stats{}, err
	}
	return queue.Stats{Backlog: backlog, InFlight: inFlight}, nil
}

func attrInt(attrs map[string]string, name types.QueueAttributeName) (int64, error) {
	v, ok := attrs[string(name)]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s attribute %q: %w", name, v, err)
	}
	return n, nil
}

// isStaleReceipt reports whether err means the receipt handle no longer
// refers to an in-flight message.
func isStaleReceipt(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ReceiptHandleIsInvalid", "InvalidParameterValue", "AWS.SimpleQueueService.ReceiptHandleIsInvalid":
		return true
	}
	return false
}
