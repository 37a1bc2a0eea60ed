// Package telemetry emits engine metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"tiergate/internal/types"
)

// Recorder receives engine metrics. The webhook handler calls it before the
// ack is written, so implementations must return without waiting on I/O.
type Recorder interface {
	RecordOutcome(ctx context.Context, kind string, outcome types.Outcome)
	RecordLatency(ctx context.Context, kind string, d time.Duration)
	RecordIdentityDegraded(ctx context.Context)
	RecordLedgerWriteFailed(ctx context.Context, table string)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Recorder = (*CloudWatchRecorder)(nil)

const (
	// maxDatumsPerPut is the PutMetricData limit on datums per request.
	maxDatumsPerPut = 1000

	defaultBufferSize    = 4096
	defaultFlushInterval = 10 * time.Second
	putTimeout           = 10 * time.Second
)

// CloudWatchRecorder buffers datums in memory and publishes them from a
// background goroutine, batching up to 1000 datums per PutMetricData call.
// Record methods never wait on CloudWatch: when the buffer is full the datum
// is dropped and counted.
//
// Metrics emitted:
//   - WebhookOutcome: Dims {EventKind, Outcome}
//   - WebhookLatency: Dims {EventKind}, milliseconds
//   - IdentityDegraded: no dims
//   - LedgerWriteFailed: Dims {Table}
//   - APILatency: Dims {Endpoint, Status}, milliseconds
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	bufferSize    int
	flushInterval time.Duration

	datums    chan cwtypes.MetricDatum
	flushReq  chan chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// RecorderOption configures a CloudWatchRecorder.
type RecorderOption func(*CloudWatchRecorder)

// WithBufferSize sets how many datums may wait for publication.
func WithBufferSize(n int) RecorderOption {
	return func(r *CloudWatchRecorder) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithFlushInterval sets how often buffered datums are published.
func WithFlushInterval(d time.Duration) RecorderOption {
	return func(r *CloudWatchRecorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// NewCloudWatchRecorder creates a recorder that publishes to namespace and
// starts its publishing loop. An empty namespace falls back to
// types.MetricNamespace. Callers must Close it to publish what is left.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger, opts ...RecorderOption) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &CloudWatchRecorder{
		client:        client,
		namespace:     namespace,
		logger:        logger,
		bufferSize:    defaultBufferSize,
		flushInterval: defaultFlushInterval,
		flushReq:      make(chan chan struct{}),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.datums = make(chan cwtypes.MetricDatum, r.bufferSize)

	go r.loop()
	return r
}

// RecordOutcome counts one event outcome per kind.
func (r *CloudWatchRecorder) RecordOutcome(ctx context.Context, kind string, outcome types.Outcome) {
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricWebhookOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEventKind), Value: aws.String(kind)},
			{Name: aws.String(types.DimOutcome), Value: aws.String(string(outcome))},
		},
	})
}

// RecordLatency records d in milliseconds.
func (r *CloudWatchRecorder) RecordLatency(ctx context.Context, kind string, d time.Duration) {
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricWebhookLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEventKind), Value: aws.String(kind)},
		},
	})
}

// RecordIdentityDegraded counts one profile fetch that fell back to a minimal user.
func (r *CloudWatchRecorder) RecordIdentityDegraded(ctx context.Context) {
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricIdentityDegraded),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

// RecordLedgerWriteFailed counts one failed write to table.
func (r *CloudWatchRecorder) RecordLedgerWriteFailed(ctx context.Context, table string) {
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricLedgerWriteFailed),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimTable), Value: aws.String(table)},
		},
	})
}

// RecordRequest records HTTP latency per route. It satisfies
// core.MetricsCollector.
func (r *CloudWatchRecorder) RecordRequest(ctx context.Context, method, endpoint, status string, d time.Duration) {
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimEndpoint), Value: aws.String(method + " " + endpoint)},
			{Name: aws.String(types.DimStatus), Value: aws.String(status)},
		},
	})
}

// Flush publishes every datum buffered so far and returns once it has been
// sent. The Lambda worker calls it before an invocation returns.
func (r *CloudWatchRecorder) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case r.flushReq <- ack:
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the publishing loop after sending what is still buffered.
// Datums recorded after Close are dropped.
func (r *CloudWatchRecorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.done) })
	select {
	case <-r.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	if n := r.dropped.Load(); n > 0 {
		r.logger.WarnContext(ctx, "metric datums dropped", "count", n)
	}
	return nil
}

// Dropped reports how many datums were discarded because the buffer was full
// or the recorder was closed.
func (r *CloudWatchRecorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *CloudWatchRecorder) put(_ context.Context, datum cwtypes.MetricDatum) {
	if datum.Timestamp == nil {
		datum.Timestamp = aws.Time(time.Now())
	}
	select {
	case <-r.done:
		r.dropped.Add(1)
		return
	default:
	}
	select {
	case r.datums <- datum:
	default:
		r.dropped.Add(1)
	}
}

func (r *CloudWatchRecorder) loop() {
	defer close(r.stopped)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]cwtypes.MetricDatum, 0, maxDatumsPerPut)
	for {
		select {
		case d := <-r.datums:
			batch = append(batch, d)
			if len(batch) == maxDatumsPerPut {
				batch = r.publish(batch)
			}
		case <-ticker.C:
			batch = r.publish(batch)
		case ack := <-r.flushReq:
			batch = r.publish(r.drain(batch))
			close(ack)
		case <-r.done:
			r.publish(r.drain(batch))
			return
		}
	}
}

// drain moves everything waiting in the channel into batch, publishing full
// batches along the way.
func (r *CloudWatchRecorder) drain(batch []cwtypes.MetricDatum) []cwtypes.MetricDatum {
	for {
		select {
		case d := <-r.datums:
			batch = append(batch, d)
			if len(batch) == maxDatumsPerPut {
				batch = r.publish(batch)
			}
		default:
			return batch
		}
	}
}

// publish sends batch and returns it emptied for reuse.
func (r *CloudWatchRecorder) publish(batch []cwtypes.MetricDatum) []cwtypes.MetricDatum {
	if len(batch) == 0 {
		return batch
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: append([]cwtypes.MetricDatum(nil), batch...),
	}

	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()
	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish metrics",
			"error", err.Error(),
			"datums", len(input.MetricData),
		)
	}
	return batch[:0]
}

// Nop discards every metric.
type Nop struct{}

func (Nop) RecordOutcome(context.Context, string, types.Outcome) {}
func (Nop) RecordLatency(context.Context, string, time.Duration) {}
func (Nop) RecordIdentityDegraded(context.Context)               {}
func (Nop) RecordLedgerWriteFailed(context.Context, string)      {}
