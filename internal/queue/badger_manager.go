package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/interfaces"
	"github.com/ternarybob/stayreel/internal/models"
)

// envelope is the record stored per message
type envelope struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// BadgerManager implements a persistent queue using BadgerDB.
// Layout:
//
//	queue:{name}:msg:{id}                  -> envelope JSON
//	queue:{name}:index:{visibleAt ns}:{id} -> empty, ordered by visibility
type BadgerManager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

var _ interfaces.QueueManager = (*BadgerManager)(nil)

// NewBadgerManager creates a new Badger-backed queue manager
func NewBadgerManager(db *badger.DB, config Config, logger arbor.ILogger) (*BadgerManager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 5 * time.Minute
	}
	if config.MaxReceive <= 0 {
		config.MaxReceive = 3
	}

	return &BadgerManager{
		db:                db,
		queueName:         config.QueueName,
		visibilityTimeout: config.VisibilityTimeout,
		maxReceive:        config.MaxReceive,
		logger:            logger,
	}, nil
}

// Enqueue adds a message to the queue, visible immediately
func (m *BadgerManager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	now := time.Now()
	env := envelope{
		ID:         uuid.New().String(),
		Body:       msg,
		EnqueuedAt: now,
		VisibleAt:  now,
	}
	env.Body.ID = ""

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(env.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, env.ID), []byte{})
	})
}

// Receive claims the next visible message and hides it for the visibility timeout.
// The returned function deletes the message.
func (m *BadgerManager) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var claimed envelope
	var dropped []envelope
	found := false

	err := m.db.Update(func(txn *badger.Txn) error {
		dropped = dropped[:0]
		found = false

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := m.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		var indexKey []byte

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			visibleAt, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}
			// Keys sort by visibility, nothing after this one is ready either
			if visibleAt.After(now) {
				break
			}

			var env envelope
			item, err := txn.Get(m.msgKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			// Poison message: drop it rather than loop forever
			if env.ReceiveCount >= m.maxReceive {
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				dropped = append(dropped, env)
				continue
			}

			claimed = env
			indexKey = key
			found = true
			break
		}

		// Commit the drops even when nothing is claimable
		if !found {
			return nil
		}

		claimed.ReceiveCount++
		claimed.VisibleAt = now.Add(m.visibilityTimeout)
		return m.rewrite(txn, claimed, indexKey)
	})

	if err != nil {
		return nil, nil, err
	}

	for _, env := range dropped {
		m.logger.Warn().
			Str("message_id", env.ID).
			Str("job_id", env.Body.JobID).
			Int("receive_count", env.ReceiveCount).
			Msg("Dropping queue message that exceeded max receive count")
	}

	if !found {
		return nil, nil, ErrNoMessage
	}

	msg := claimed.Body
	msg.ID = claimed.ID
	deleteFn := func() error {
		return m.delete(claimed.ID)
	}
	return &msg, deleteFn, nil
}

// Extend pushes the visibility of a received message out by duration
func (m *BadgerManager) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		env, err := m.load(txn, messageID)
		if err != nil {
			return err
		}
		oldIndexKey := m.indexKey(env.VisibleAt, messageID)
		env.VisibleAt = time.Now().Add(duration)
		return m.rewrite(txn, *env, oldIndexKey)
	})
}

// Len counts messages still in the queue, visible or not
func (m *BadgerManager) Len(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := m.indexPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close is a no-op, the DB is owned by the storage manager
func (m *BadgerManager) Close() error {
	return nil
}

func (m *BadgerManager) delete(id string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		env, err := m.load(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(m.indexKey(env.VisibleAt, id)); err != nil {
			return err
		}
		return txn.Delete(m.msgKey(id))
	})
}

func (m *BadgerManager) load(txn *badger.Txn, id string) (*envelope, error) {
	item, err := txn.Get(m.msgKey(id))
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	}); err != nil {
		return nil, err
	}
	return &env, nil
}

// rewrite stores env and moves its index entry from oldIndexKey to the new visibility
func (m *BadgerManager) rewrite(txn *badger.Txn, env envelope, oldIndexKey []byte) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := txn.Set(m.msgKey(env.ID), data); err != nil {
		return err
	}
	if err := txn.Delete(oldIndexKey); err != nil {
		return err
	}
	return txn.Set(m.indexKey(env.VisibleAt, env.ID), []byte{})
}

func (m *BadgerManager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *BadgerManager) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
}

func (m *BadgerManager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so byte order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *BadgerManager) parseIndexKey(key []byte) (time.Time, string, error) {
	suffix := bytes.TrimPrefix(key, m.indexPrefix())
	// {20-digit ts}:{id}
	if len(suffix) < 22 || suffix[20] != ':' {
		return time.Time{}, "", fmt.Errorf("invalid index key %q", key)
	}
	ts, err := strconv.ParseInt(string(suffix[:20]), 10, 64)
	if err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), string(suffix[21:]), nil
}
