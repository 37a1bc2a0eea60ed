// Package main is the entrypoint for the Entitlement Worker Lambda function.
//
// The worker consumes canonical events published by the webhook server in
// DISPATCH_MODE=sqs and runs each one through the entitlement processor
// (dedupe claim, identity resolution, purchase record, grant or revoke).
//
// Cold Start (main):
//  1. Load configuration (env, dotenv, SSM).
//  2. Initialize structured logger.
//  3. Open the ledger pool and the optional dedupe cache.
//  4. Initialize the identity client and CloudWatch metrics.
//  5. Register handler and call lambda.Start.
//
// Every message is acknowledged. Processing failures are logged and counted
// by the processor; the engine does not retry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"tiergate/internal/config"
	"tiergate/internal/db"
	"tiergate/internal/dedupe"
	"tiergate/internal/dispatch"
	"tiergate/internal/entitlement"
	"tiergate/internal/external"
	"tiergate/internal/queue"
	"tiergate/internal/telemetry"
)

// metricsFlusher publishes buffered metrics. telemetry.CloudWatchRecorder
// implements it.
type metricsFlusher interface {
	Flush(ctx context.Context) error
}

// Handler holds the dependencies for the worker Lambda handler.
type Handler struct {
	processor dispatch.Processor
	metrics   metricsFlusher
	logger    *slog.Logger
}

// Handle processes an SQS batch. Each record is handled independently and
// the response never reports batch item failures. Buffered metrics are
// published before returning because Lambda freezes the process between
// invocations.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	for _, record := range sqsEvent.Records {
		h.processMessage(ctx, record)
	}
	if h.metrics != nil {
		if err := h.metrics.Flush(ctx); err != nil {
			h.logger.WarnContext(ctx, "failed to flush metrics", "error", err)
		}
	}
	return events.SQSEventResponse{}, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) {
	logger := h.logger.With("message_id", record.MessageId)

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "panic while processing message", "panic", fmt.Sprint(rec))
		}
	}()

	ev, err := queue.DecodeMessage(record.Body, stringAttributes(record.MessageAttributes))
	if err != nil {
		// Permanent decode failure; redelivery would fail the same way.
		logger.ErrorContext(ctx, "failed to decode entitlement event", "error", err)
		return
	}

	logger = logger.With("delivery_id", ev.DeliveryID, "event_kind", string(ev.Kind))
	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if ts, err := parseMillisTimestamp(sent); err == nil {
			logger = logger.With("queue_lag_ms", time.Since(ts).Milliseconds())
		}
	}

	outcome, err := h.processor.Process(ctx, ev)
	if err != nil {
		logger.WarnContext(ctx, "entitlement event not applied", "outcome", string(outcome), "error", err)
		return
	}
	logger.InfoContext(ctx, "entitlement event processed", "outcome", string(outcome))
}

// stringAttributes flattens SQS message attributes to their string values.
func stringAttributes(attrs map[string]events.SQSMessageAttribute) map[string]string {
	out := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		if attr.StringValue != nil {
			out[name] = *attr.StringValue
		}
	}
	return out
}

// parseMillisTimestamp parses a millisecond-epoch string into a time.Time.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	cfg, err := config.LoadConfig(config.NewSecretProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("Entitlement Worker Lambda initializing (cold start)")

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	var claims dedupe.Store = dedupe.Nop{}
	if !cfg.Dedupe.RedisURL.IsEmpty() {
		store, _, err := dedupe.Dial(ctx, cfg.Dedupe.RedisURL.Unmask(), cfg.Dedupe.TTL, logger.With("component", "dedupe"))
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		claims = store
	}

	var metrics telemetry.Recorder = telemetry.Nop{}
	var flusher metricsFlusher
	if cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("Failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		recorder := telemetry.NewCloudWatchRecorder(cw, cfg.Observability.MetricNamespace, logger.With("component", "metrics"))
		metrics, flusher = recorder, recorder
	}

	registry := external.NewClientRegistry(cfg, logger)

	handler := &Handler{
		processor: entitlement.New(
			db.NewLedger(pool),
			registry.Identity,
			cfg.Entitlement.RevocationPolicy,
			claims,
			metrics,
			logger.With("component", "entitlement"),
		),
		metrics: flusher,
		logger:  logger,
	}

	logger.Info("Entitlement Worker Lambda initialized",
		"revocation_policy", string(cfg.Entitlement.RevocationPolicy),
		"dedupe", !cfg.Dedupe.RedisURL.IsEmpty(),
		"metrics", cfg.Observability.EnableMetrics,
	)

	lambda.Start(handler.Handle)
}

// newLogger creates a JSON slog.Logger at the given level. Unknown levels
// fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
