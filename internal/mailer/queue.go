package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketEmails   = []byte("emails")
	bucketPending  = []byte("pending")
	bucketDeferred = []byte("deferred")
)

// Queue is the durable outbound email queue
type Queue struct {
	db *bolt.DB
}

// OpenQueue opens (or creates) the queue database at path
func OpenQueue(path string) (*Queue, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEmails, bucketPending, bucketDeferred} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Queue{db: db}, nil
}

// Enqueue adds an email to the pending index
func (q *Queue) Enqueue(ctx context.Context, email *Email) error {
	now := time.Now()
	email.Status = StatusPending
	email.CreatedAt = now
	email.UpdatedAt = now

	return q.db.Update(func(tx *bolt.Tx) error {
		if err := putEmail(tx, email); err != nil {
			return err
		}
		key := indexKey(email.CreatedAt, email.ID)
		if err := tx.Bucket(bucketPending).Put(key, []byte(email.ID)); err != nil {
			return fmt.Errorf("failed to add to pending index: %w", err)
		}
		return nil
	})
}

// Dequeue claims the next deliverable email, preferring deferred
// messages whose retry time has arrived. Returns nil when the queue
// has nothing ready.
func (q *Queue) Dequeue(ctx context.Context) (*Email, error) {
	var claimed *Email

	err := q.db.Update(func(tx *bolt.Tx) error {
		now := time.Now()

		if email, err := q.claim(tx, bucketDeferred, now, true); err != nil || email != nil {
			claimed = email
			return err
		}

		email, err := q.claim(tx, bucketPending, now, false)
		claimed = email
		return err
	})

	return claimed, err
}

// claim walks a time-ordered index, removes the first eligible entry
// and marks its email as sending.
func (q *Queue) claim(tx *bolt.Tx, bucket []byte, now time.Time, honorRetryAt bool) (*Email, error) {
	emails := tx.Bucket(bucketEmails)
	c := tx.Bucket(bucket).Cursor()

	for k, v := c.First(); k != nil; k, v = c.Next() {
		if honorRetryAt && indexKeyTime(k).After(now) {
			return nil, nil // remaining entries are in the future
		}

		data := emails.Get(v)
		if data == nil {
			// Email was deleted, drop the stale index entry
			c.Delete()
			continue
		}

		var email Email
		if err := json.Unmarshal(data, &email); err != nil {
			return nil, fmt.Errorf("failed to unmarshal email %s: %w", v, err)
		}

		email.Status = StatusSending
		email.UpdatedAt = now
		if err := putEmail(tx, &email); err != nil {
			return nil, err
		}
		if err := c.Delete(); err != nil {
			return nil, err
		}
		return &email, nil
	}

	return nil, nil
}

// Update persists the email state, re-indexing deferred messages by
// their next retry time
func (q *Queue) Update(ctx context.Context, email *Email) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		email.UpdatedAt = time.Now()
		if err := putEmail(tx, email); err != nil {
			return err
		}
		if email.Status == StatusDeferred {
			key := indexKey(email.NextRetryAt, email.ID)
			if err := tx.Bucket(bucketDeferred).Put(key, []byte(email.ID)); err != nil {
				return fmt.Errorf("failed to add to deferred index: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves an email by ID, nil when absent
func (q *Queue) Get(ctx context.Context, id string) (*Email, error) {
	var email *Email

	err := q.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEmails).Get([]byte(id))
		if data == nil {
			return nil
		}
		email = &Email{}
		return json.Unmarshal(data, email)
	})

	return email, err
}

// Stats counts emails by status
func (q *Queue) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}

	err := q.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEmails).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var email Email
			if err := json.Unmarshal(v, &email); err != nil {
				continue
			}
			stats.Total++
			switch email.Status {
			case StatusPending:
				stats.Pending++
			case StatusSending:
				stats.Sending++
			case StatusDelivered:
				stats.Delivered++
			case StatusFailed:
				stats.Failed++
			case StatusDeferred:
				stats.Deferred++
			}
		}
		return nil
	})

	return stats, err
}

// CleanupDelivered removes delivered emails older than maxAge
func (q *Queue) CleanupDelivered(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	err := q.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(bucketEmails)
		c := emails.Cursor()

		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var email Email
			if err := json.Unmarshal(v, &email); err != nil {
				continue
			}
			if email.Status == StatusDelivered && email.UpdatedAt.Before(cutoff) {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}

		for _, k := range toDelete {
			if err := emails.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})

	return deleted, err
}

// Close closes the queue database
func (q *Queue) Close() error {
	return q.db.Close()
}

func putEmail(tx *bolt.Tx, email *Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}
	if err := tx.Bucket(bucketEmails).Put([]byte(email.ID), data); err != nil {
		return fmt.Errorf("failed to store email: %w", err)
	}
	return nil
}

// indexKey builds a sortable key: RFC3339Nano timestamp + ":" + id
func indexKey(t time.Time, id string) []byte {
	return []byte(t.Format(time.RFC3339Nano) + ":" + id)
}

// indexKeyTime extracts the timestamp from an index key
func indexKeyTime(key []byte) time.Time {
	s := string(key)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			ts, _ := time.Parse(time.RFC3339Nano, s[:i])
			return ts
		}
	}
	return time.Time{}
}
