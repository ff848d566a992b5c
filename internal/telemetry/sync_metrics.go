package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// Order lifecycle metrics
	orderTransitionCounter metric.Int64Counter

	// Realtime fan-out metrics
	broadcastCounter   metric.Int64Counter
	frameDropCounter   metric.Int64Counter
	liveSessionsGauge  metric.Int64UpDownCounter
	inboundEventErrors metric.Int64Counter
)

// InitSyncMetrics initializes order and realtime metrics. Until it is
// called every Record function is a no-op.
func InitSyncMetrics() error {
	meter := otel.Meter("mebelplace.sync")

	var err error

	orderTransitionCounter, err = meter.Int64Counter(
		"order.transition.count",
		metric.WithDescription("Order status change attempts by outcome"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}

	broadcastCounter, err = meter.Int64Counter(
		"realtime.broadcast.count",
		metric.WithDescription("Room broadcasts issued"),
		metric.WithUnit("{broadcast}"),
	)
	if err != nil {
		return err
	}

	frameDropCounter, err = meter.Int64Counter(
		"realtime.frame.dropped",
		metric.WithDescription("Frames skipped because a member's send queue was full or closed"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	liveSessionsGauge, err = meter.Int64UpDownCounter(
		"realtime.sessions.live",
		metric.WithDescription("Connected realtime sessions on this instance"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return err
	}

	inboundEventErrors, err = meter.Int64Counter(
		"realtime.inbound.errors",
		metric.WithDescription("Inbound events rejected or failed, by code"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordOrderTransition records one ChangeStatus attempt.
func RecordOrderTransition(ctx context.Context, from, to, outcome string) {
	if orderTransitionCounter != nil {
		orderTransitionCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("from", from),
				attribute.String("to", to),
				attribute.String("outcome", outcome),
			),
		)
	}
}

// RecordBroadcast records a room broadcast and how many members were skipped.
func RecordBroadcast(ctx context.Context, roomKind string, dropped int) {
	if broadcastCounter != nil {
		broadcastCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("room_kind", roomKind)))
	}
	if frameDropCounter != nil && dropped > 0 {
		frameDropCounter.Add(ctx, int64(dropped), metric.WithAttributes(attribute.String("room_kind", roomKind)))
	}
}

func SessionOpened(ctx context.Context) {
	if liveSessionsGauge != nil {
		liveSessionsGauge.Add(ctx, 1)
	}
}

func SessionClosed(ctx context.Context) {
	if liveSessionsGauge != nil {
		liveSessionsGauge.Add(ctx, -1)
	}
}

func RecordInboundError(ctx context.Context, event, code string) {
	if inboundEventErrors != nil {
		inboundEventErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("event", event),
				attribute.String("code", code),
			),
		)
	}
}
