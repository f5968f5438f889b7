package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce   sync.Once
	deliveriesCounter metric.Int64Counter
	archivedCounter   metric.Int64Counter
	ticksCounter      metric.Int64Counter
	failuresCounter   metric.Int64Counter
	votesCounter      metric.Int64Counter
	mergesCounter     metric.Int64Counter
	jobsCounter       metric.Int64Counter
	jobDuration       metric.Float64Histogram
	llmDuration       metric.Float64Histogram
	inflightGauge     metric.Int64ObservableGauge
	streamEvents      metric.Int64Counter
	streamConns       metric.Int64UpDownCounter
	inflightJobs      int64
	inflightMu        sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		deliveriesCounter, err = m.Int64Counter("usagi_mailbox_deliveries_total", metric.WithDescription("Mailbox messages delivered, by kind"))
		if err != nil {
			return
		}
		archivedCounter, err = m.Int64Counter("usagi_mailbox_archived_total", metric.WithDescription("Mailbox messages archived, by agent"))
		if err != nil {
			return
		}
		ticksCounter, err = m.Int64Counter("usagi_role_ticks_total", metric.WithDescription("Role tick invocations"))
		if err != nil {
			return
		}
		failuresCounter, err = m.Int64Counter("usagi_handler_failures_total", metric.WithDescription("Messages left in inbox after a handler failure"))
		if err != nil {
			return
		}
		votesCounter, err = m.Int64Counter("usagi_votes_total", metric.WithDescription("Escalation votes by outcome"))
		if err != nil {
			return
		}
		mergesCounter, err = m.Int64Counter("usagi_merges_total", metric.WithDescription("Team branch merge attempts by result"))
		if err != nil {
			return
		}
		jobsCounter, err = m.Int64Counter("usagi_jobs_total", metric.WithDescription("Input specification jobs by result"))
		if err != nil {
			return
		}
		jobDuration, err = m.Float64Histogram("usagi_job_duration_seconds", metric.WithDescription("Input job duration in seconds"))
		if err != nil {
			return
		}
		llmDuration, err = m.Float64Histogram("usagi_llm_call_duration_seconds", metric.WithDescription("LLM backend call duration in seconds"))
		if err != nil {
			return
		}
		streamEvents, err = m.Int64Counter("usagi_stream_events_total", metric.WithDescription("Events published to /api/stream subscribers"))
		if err != nil {
			return
		}
		streamConns, err = m.Int64UpDownCounter("usagi_stream_connections", metric.WithDescription("Open /api/stream connections"))
		if err != nil {
			return
		}
		inflightGauge, err = m.Int64ObservableGauge("usagi_jobs_inflight", metric.WithDescription("Jobs currently being processed"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			inflightMu.Lock()
			n := inflightJobs
			inflightMu.Unlock()
			o.ObserveInt64(inflightGauge, n)
			return nil
		}, inflightGauge)
	})
	return err
}

// RecordDelivery records one mailbox delivery.
func RecordDelivery(ctx context.Context, kind string) {
	if deliveriesCounter == nil {
		return
	}
	deliveriesCounter.Add(ctx, 1, metric.WithAttributes(AttrKind.String(kind)))
}

// RecordArchive records one archived inbox message.
func RecordArchive(ctx context.Context, agent string) {
	if archivedCounter == nil {
		return
	}
	archivedCounter.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agent)))
}

// RecordTick records a role tick.
func RecordTick(ctx context.Context, role string) {
	if ticksCounter == nil {
		return
	}
	ticksCounter.Add(ctx, 1, metric.WithAttributes(AttrRole.String(role)))
}

// RecordHandlerFailure records a message left un-archived after a failure.
func RecordHandlerFailure(ctx context.Context, role string) {
	if failuresCounter == nil {
		return
	}
	failuresCounter.Add(ctx, 1, metric.WithAttributes(AttrRole.String(role)))
}

// RecordVote records a vote outcome (approve, block, tie).
func RecordVote(ctx context.Context, outcome string) {
	if votesCounter == nil {
		return
	}
	votesCounter.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
}

// RecordMerge records a merge attempt (merged, skipped, failed).
func RecordMerge(ctx context.Context, result string) {
	if mergesCounter == nil {
		return
	}
	mergesCounter.Add(ctx, 1, metric.WithAttributes(AttrResult.String(result)))
}

// RecordJob records a finished job and its duration.
func RecordJob(ctx context.Context, result string, d time.Duration) {
	if jobsCounter != nil {
		jobsCounter.Add(ctx, 1, metric.WithAttributes(AttrResult.String(result)))
	}
	if jobDuration != nil {
		jobDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrResult.String(result)))
	}
}

// RecordLLMCall records one backend call duration.
func RecordLLMCall(ctx context.Context, backend string, d time.Duration) {
	if llmDuration != nil {
		llmDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrKind.String(backend)))
	}
}

// AddInflightJob adds 1 to the in-flight job gauge.
func AddInflightJob() {
	inflightMu.Lock()
	inflightJobs++
	inflightMu.Unlock()
}

// RemoveInflightJob subtracts 1 from the in-flight job gauge.
func RemoveInflightJob() {
	inflightMu.Lock()
	inflightJobs--
	if inflightJobs < 0 {
		inflightJobs = 0
	}
	inflightMu.Unlock()
}

// RecordStreamEvent records one event published to stream subscribers.
func RecordStreamEvent(ctx context.Context) {
	if streamEvents != nil {
		streamEvents.Add(ctx, 1)
	}
}

// AddStreamConnection and RemoveStreamConnection track open stream subscribers.
func AddStreamConnection() {
	if streamConns != nil {
		streamConns.Add(context.Background(), 1)
	}
}

func RemoveStreamConnection() {
	if streamConns != nil {
		streamConns.Add(context.Background(), -1)
	}
}
