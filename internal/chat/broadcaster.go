package chat

import (
	"context"
	"time"

	"github.com/Shugur-Network/roomchat/internal/metrics"
	"go.uber.org/zap"
)

// DeliveryReport summarizes one Publish call. It is for observability only;
// nothing is retried.
type DeliveryReport struct {
	Room        int64
	Recipients  int
	Delivered   int
	DroppedSlow int
	DroppedDead int
	Elapsed     time.Duration
}

// Broadcaster fans envelopes out to every member of a room.
type Broadcaster struct {
	registry    *Registry
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewBroadcaster returns a broadcaster over registry. sendTimeout bounds how
// long one Publish waits on members whose queues are full.
func NewBroadcaster(registry *Registry, sendTimeout time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		registry:    registry,
		sendTimeout: sendTimeout,
		logger:      logger.Named("broadcaster"),
	}
}

// Publish delivers env to the room's members as of the call.
//
// Each member is first offered the frame without blocking. Members whose
// queue is full then share a single deadline of sendTimeout, so the call
// returns within roughly sendTimeout however many members are slow. A member
// still full at the deadline is unregistered and evicted with
// ErrSlowConsumer; a member that is already closing is unregistered and
// counted dead. Cancelling ctx ends the wait early with the same effect as
// the deadline.
func (b *Broadcaster) Publish(ctx context.Context, env Envelope) DeliveryReport {
	start := time.Now()
	report := DeliveryReport{Room: env.Room}

	frame, err := env.Marshal()
	if err != nil {
		b.logger.Error("Failed to encode envelope", zap.Int64("room", env.Room), zap.Error(err))
		return report
	}

	members := b.registry.MembersOf(env.Room)
	report.Recipients = len(members)

	var full []Member
	for _, m := range members {
		switch m.TryEnqueue(frame) {
		case OutcomeDelivered:
			report.Delivered++
		case OutcomeDead:
			b.dropDead(m)
			report.DroppedDead++
		default:
			full = append(full, m)
		}
	}

	if len(full) > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
		for _, m := range full {
			switch m.Enqueue(waitCtx, frame) {
			case OutcomeDelivered:
				report.Delivered++
			case OutcomeDead:
				b.dropDead(m)
				report.DroppedDead++
			default:
				b.evict(m)
				report.DroppedSlow++
			}
		}
		cancel()
	}

	report.Elapsed = time.Since(start)
	b.record(env, report, len(frame))
	return report
}

func (b *Broadcaster) dropDead(m Member) {
	b.registry.Unregister(m)
}

func (b *Broadcaster) evict(m Member) {
	b.registry.Unregister(m)
	m.Evict(ErrSlowConsumer)
	b.logger.Warn("Evicted slow consumer",
		zap.String("conn_id", string(m.ID())),
		zap.Duration("send_timeout", b.sendTimeout))
}

func (b *Broadcaster) record(env Envelope, report DeliveryReport, size int) {
	metrics.MessagePublished(string(env.Kind), report.Recipients, report.Elapsed)
	metrics.MessageSizeBytes.Observe(float64(size))
	metrics.Deliveries.WithLabelValues(OutcomeDelivered.String()).Add(float64(report.Delivered))
	if report.DroppedSlow > 0 {
		metrics.Deliveries.WithLabelValues(OutcomeFull.String()).Add(float64(report.DroppedSlow))
	}
	if report.DroppedDead > 0 {
		metrics.Deliveries.WithLabelValues(OutcomeDead.String()).Add(float64(report.DroppedDead))
	}

	if ce := b.logger.Check(zap.DebugLevel, "Published envelope"); ce != nil {
		ce.Write(
			zap.Int64("room", report.Room),
			zap.String("kind", string(env.Kind)),
			zap.Int("recipients", report.Recipients),
			zap.Int("delivered", report.Delivered),
			zap.Int("dropped_slow", report.DroppedSlow),
			zap.Int("dropped_dead", report.DroppedDead),
			zap.Duration("elapsed", report.Elapsed),
		)
	}
}
