package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/step"
)

// claimScript leases due deliveries atomically.
//
// KEYS[1] due set. ARGV: now millis, limit, lease-until millis, hash key
// prefix, lease-until RFC3339.
var claimScript = goredis.NewScript(`
local ids
if tonumber(ARGV[2]) > 0 then
  ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
else
  ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
for _, id in ipairs(ids) do
  redis.call('ZADD', KEYS[1], ARGV[3], id)
  local key = ARGV[4] .. id
  redis.call('HINCRBY', key, 'attempt', 1)
  redis.call('HSET', key, 'run_at', ARGV[5])
end
return ids
`)

// Schedule stores the delivery as a Hash and adds it to the due set.
func (s *Store) Schedule(ctx context.Context, d *step.Delivery) error {
	dID := d.ID.String()
	key := s.deliveryKey(dID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepchain/redis: schedule check exists: %w", err)
	}
	if exists > 0 {
		return stepchain.ErrDeliveryExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, deliveryToMap(d))
	pipe.ZAdd(ctx, s.dueKey(), goredis.Z{Score: score(d.RunAt), Member: dID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepchain/redis: schedule delivery: %w", err)
	}
	return nil
}

// ClaimDue leases up to limit due deliveries, earliest first.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*step.Delivery, error) {
	until := now.Add(lease).UTC()
	res, err := claimScript.Run(ctx, s.client, []string{s.dueKey()},
		now.UnixMilli(),
		limit,
		until.UnixMilli(),
		s.deliveryKey(""),
		until.Format(time.RFC3339Nano),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("stepchain/redis: claim due: %w", err)
	}

	out := make([]*step.Delivery, 0, len(res))
	for _, dID := range res {
		d, getErr := s.getDelivery(ctx, dID)
		if getErr != nil {
			// The hash vanished between claim and read; drop the stale member.
			s.client.ZRem(ctx, s.dueKey(), dID)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Ack removes a processed delivery.
func (s *Store) Ack(ctx context.Context, deliveryID id.DeliveryID) error {
	return s.remove(ctx, deliveryID, "ack")
}

// Cancel removes a delivery.
func (s *Store) Cancel(ctx context.Context, deliveryID id.DeliveryID) error {
	return s.remove(ctx, deliveryID, "cancel")
}

// Reschedule sets a delivery's RunAt.
func (s *Store) Reschedule(ctx context.Context, deliveryID id.DeliveryID, runAt time.Time) error {
	dID := deliveryID.String()
	key := s.deliveryKey(dID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepchain/redis: reschedule exists: %w", err)
	}
	if exists == 0 {
		return stepchain.ErrDeliveryNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "run_at", runAt.UTC().Format(time.RFC3339Nano))
	pipe.ZAdd(ctx, s.dueKey(), goredis.Z{Score: score(runAt), Member: dID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepchain/redis: reschedule delivery: %w", err)
	}
	return nil
}

// Release makes a claimed delivery due at runAt and uncounts its claim.
func (s *Store) Release(ctx context.Context, deliveryID id.DeliveryID, runAt time.Time) error {
	dID := deliveryID.String()
	key := s.deliveryKey(dID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepchain/redis: release exists: %w", err)
	}
	if exists == 0 {
		return stepchain.ErrDeliveryNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "run_at", runAt.UTC().Format(time.RFC3339Nano))
	pipe.HIncrBy(ctx, key, "attempt", -1)
	pipe.ZAdd(ctx, s.dueKey(), goredis.Z{Score: score(runAt), Member: dID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepchain/redis: release delivery: %w", err)
	}
	return nil
}

// Pending returns scheduled deliveries ordered by RunAt.
func (s *Store) Pending(ctx context.Context, opts step.ListOpts) ([]*step.Delivery, error) {
	ids, err := s.client.ZRange(ctx, s.dueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("stepchain/redis: pending zrange: %w", err)
	}

	out := make([]*step.Delivery, 0, len(ids))
	for _, dID := range ids {
		d, getErr := s.getDelivery(ctx, dID)
		if getErr != nil {
			continue // skip missing
		}
		if opts.Step != "" && d.Step != opts.Step {
			continue
		}
		out = append(out, d)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) remove(ctx context.Context, deliveryID id.DeliveryID, op string) error {
	dID := deliveryID.String()

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.deliveryKey(dID))
	pipe.ZRem(ctx, s.dueKey(), dID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepchain/redis: %s delivery: %w", op, err)
	}
	if del.Val() == 0 {
		return stepchain.ErrDeliveryNotFound
	}
	return nil
}

// ── helpers ──

// score orders the due set by RunAt. IDs are time-ordered, so Redis breaks
// ties between equal scores in scheduling order.
func score(runAt time.Time) float64 {
	return float64(runAt.UnixMilli())
}

func deliveryToMap(d *step.Delivery) map[string]interface{} {
	return map[string]interface{}{
		"id":          d.ID.String(),
		"step":        d.Step,
		"payload":     string(d.Payload),
		"codec":       d.Codec,
		"attempt":     strconv.Itoa(d.Attempt),
		"run_at":      d.RunAt.UTC().Format(time.RFC3339Nano),
		"enqueued_at": d.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Store) getDelivery(ctx context.Context, dID string) (*step.Delivery, error) {
	vals, err := s.client.HGetAll(ctx, s.deliveryKey(dID)).Result()
	if err != nil {
		return nil, fmt.Errorf("stepchain/redis: get delivery: %w", err)
	}
	if len(vals) == 0 {
		return nil, stepchain.ErrDeliveryNotFound
	}
	return mapToDelivery(vals)
}

func mapToDelivery(m map[string]string) (*step.Delivery, error) {
	dID, err := id.ParseDeliveryID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("stepchain/redis: parse delivery id: %w", err)
	}

	attempt, _ := strconv.Atoi(m["attempt"])                        //nolint:errcheck // best-effort parse from trusted Redis data
	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])           //nolint:errcheck // best-effort parse from trusted Redis data
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &step.Delivery{
		ID:         dID,
		Step:       m["step"],
		Payload:    []byte(m["payload"]),
		Codec:      m["codec"],
		Attempt:    attempt,
		RunAt:      runAt,
		EnqueuedAt: enqueuedAt,
	}, nil
}
