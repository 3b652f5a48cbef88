package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

// queueMessage is the table backing GormQueue. One row per in-flight
// message; the queue name column lets dispatch, completion, and dead-letter
// queues share a table.
type queueMessage struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Queue        string    `gorm:"index:idx_queue_visible;size:255;not null"`
	Body         []byte    `gorm:"type:bytes"`
	VisibleAt    time.Time `gorm:"index:idx_queue_visible"`
	ReceiveCount int       `gorm:"default:0"`
	Handle       string    `gorm:"index;size:36"`
	EnqueuedAt   time.Time `gorm:"autoCreateTime"`
}

// GormQueue implements core.Queue on a shared database table, giving
// separate scheduler and worker processes a common transport. Receipt locks
// a row by advancing VisibleAt inside a transaction, the same guarded-update
// pattern as the job store.
type GormQueue struct {
	db         *gorm.DB
	name       string
	visibility time.Duration
	maxReceive int
	deadLetter string
}

// GormQueueOption configures a GormQueue.
type GormQueueOption func(*GormQueue)

// WithGormVisibilityTimeout sets the redelivery window. Default 30s.
func WithGormVisibilityTimeout(d time.Duration) GormQueueOption {
	return func(q *GormQueue) { q.visibility = d }
}

// WithGormMaxReceiveCount sets the redrive limit. Default 5.
func WithGormMaxReceiveCount(n int) GormQueueOption {
	return func(q *GormQueue) { q.maxReceive = n }
}

// WithGormDeadLetter names the queue receiving exhausted messages.
func WithGormDeadLetter(name string) GormQueueOption {
	return func(q *GormQueue) { q.deadLetter = name }
}

// NewGormQueue creates a queue named name on db.
func NewGormQueue(db *gorm.DB, name string, opts ...GormQueueOption) *GormQueue {
	q := &GormQueue{
		db:         db,
		name:       name,
		visibility: 30 * time.Second,
		maxReceive: 5,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Migrate creates the queue table.
func (q *GormQueue) Migrate(ctx context.Context) error {
	return q.db.WithContext(ctx).AutoMigrate(&queueMessage{})
}

// Send enqueues one message body.
func (q *GormQueue) Send(ctx context.Context, body []byte) error {
	msg := &queueMessage{
		ID:        uuid.New().String(),
		Queue:     q.name,
		Body:      body,
		VisibleAt: time.Now(),
	}
	return q.db.WithContext(ctx).Create(msg).Error
}

// Receive long-polls for up to max visible messages, waiting at most wait.
func (q *GormQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]core.Delivery, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)

	for {
		deliveries, err := q.receiveOnce(ctx, max)
		if err != nil {
			return nil, err
		}
		if len(deliveries) > 0 {
			return deliveries, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		// Never sleep past the caller's deadline.
		sleep := 100 * time.Millisecond
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (q *GormQueue) receiveOnce(ctx context.Context, max int) ([]core.Delivery, error) {
	var deliveries []core.Delivery

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var rows []queueMessage
		err := tx.
			Where("queue = ?", q.name).
			Where("visible_at <= ?", now).
			Order("enqueued_at ASC").
			Limit(max).
			Find(&rows).Error
		if err != nil {
			return err
		}

		for _, row := range rows {
			row.ReceiveCount++

			if q.maxReceive > 0 && row.ReceiveCount > q.maxReceive {
				updates := map[string]any{
					"receive_count": 0,
					"visible_at":    now,
					"handle":        "",
					"queue":         q.deadLetter,
				}
				if q.deadLetter == "" {
					// No redrive target configured; drop the message.
					if err := tx.Delete(&queueMessage{}, "id = ?", row.ID).Error; err != nil {
						return err
					}
					continue
				}
				if err := tx.Model(&queueMessage{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
					return err
				}
				continue
			}

			handle := uuid.New().String()
			err := tx.Model(&queueMessage{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{
					"visible_at":    now.Add(q.visibility),
					"receive_count": row.ReceiveCount,
					"handle":        handle,
				}).Error
			if err != nil {
				return err
			}

			deliveries = append(deliveries, core.Delivery{
				Body:         row.Body,
				Handle:       handle,
				ReceiveCount: row.ReceiveCount,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// Delete acknowledges a delivery by handle; unknown handles are a no-op.
func (q *GormQueue) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return q.db.WithContext(ctx).
		Delete(&queueMessage{}, "handle = ?", handle).Error
}
