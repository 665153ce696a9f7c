package queue

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	boltJobsBucket     = []byte("jobs")
	boltReadyBucket    = []byte("ready")
	boltInflightBucket = []byte("inflight")
	boltDeadBucket     = []byte("dead")
)

const (
	boltStateReady    = "ready"
	boltStateInflight = "inflight"
	boltStateDead     = "dead"
)

// boltRecord is the persisted job; SortKey locates it in ready or inflight.
type boltRecord struct {
	Payload    []byte    `json:"payload"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
	State      string    `json:"state"`
	LeaseID    string    `json:"lease_id,omitempty"`
	SortKey    []byte    `json:"sort_key,omitempty"`
}

// BoltQueue is an embedded single-process queue on a bbolt file. Ready and
// inflight buckets are keyed by big-endian nanosecond time plus id, so a
// cursor walks them in visibility order.
type BoltQueue struct {
	db     *bolt.DB
	closed atomic.Bool
}

func OpenBolt(path string) (*BoltQueue, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt queue %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{boltJobsBucket, boltReadyBucket, boltInflightBucket, boltDeadBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt queue buckets: %w", err)
	}
	return &BoltQueue{db: db}, nil
}

func sortKey(at time.Time, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key[:8], uint64(at.UnixNano()))
	copy(key[8:], id)
	return key
}

func sortKeyTime(key []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(key[:8]))).UTC()
}

func (q *BoltQueue) Enqueue(_ context.Context, msg Message) (bool, error) {
	if q.closed.Load() {
		return false, ErrQueueClosed
	}
	if msg.ID == "" {
		return false, ErrInvalidID
	}
	enqueuedAt := msg.EnqueuedAt.UTC()
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}
	created := false
	err := q.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(boltJobsBucket)
		if jobs.Get([]byte(msg.ID)) != nil {
			return nil
		}
		key := sortKey(enqueuedAt, msg.ID)
		record := boltRecord{
			Payload:    msg.Payload,
			EnqueuedAt: enqueuedAt,
			State:      boltStateReady,
			SortKey:    key,
		}
		if err := putRecord(jobs, msg.ID, record); err != nil {
			return err
		}
		created = true
		return tx.Bucket(boltReadyBucket).Put(key, nil)
	})
	return created, err
}

func (q *BoltQueue) Lease(_ context.Context, now time.Time, leaseFor time.Duration) (Message, bool, error) {
	if q.closed.Load() {
		return Message{}, false, ErrQueueClosed
	}
	if leaseFor <= 0 {
		return Message{}, false, ErrInvalidLease
	}
	now = now.UTC()
	var leased Message
	found := false
	err := q.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(boltJobsBucket)
		ready := tx.Bucket(boltReadyBucket)
		inflight := tx.Bucket(boltInflightBucket)

		if err := requeueExpired(jobs, ready, inflight, now); err != nil {
			return err
		}

		key, _ := ready.Cursor().First()
		if key == nil || sortKeyTime(key).After(now) {
			return nil
		}
		id := string(key[8:])
		record, err := getRecord(jobs, id)
		if err != nil {
			return err
		}
		if err := ready.Delete(key); err != nil {
			return err
		}
		record.Attempts++
		record.State = boltStateInflight
		record.LeaseID = uuid.NewString()
		record.SortKey = sortKey(now.Add(leaseFor), id)
		if err := inflight.Put(record.SortKey, nil); err != nil {
			return err
		}
		if err := putRecord(jobs, id, record); err != nil {
			return err
		}
		leased = Message{
			ID:         id,
			Payload:    append([]byte(nil), record.Payload...),
			Attempts:   record.Attempts,
			EnqueuedAt: record.EnqueuedAt,
			LastError:  record.LastError,
			LeaseID:    record.LeaseID,
		}
		found = true
		return nil
	})
	return leased, found, err
}

func requeueExpired(jobs, ready, inflight *bolt.Bucket, now time.Time) error {
	cursor := inflight.Cursor()
	var expired [][]byte
	for key, _ := cursor.First(); key != nil && !sortKeyTime(key).After(now); key, _ = cursor.Next() {
		expired = append(expired, append([]byte(nil), key...))
	}
	for _, key := range expired {
		id := string(key[8:])
		if err := inflight.Delete(key); err != nil {
			return err
		}
		record, err := getRecord(jobs, id)
		if err != nil {
			return err
		}
		record.State = boltStateReady
		record.LeaseID = ""
		record.SortKey = sortKey(now, id)
		if err := ready.Put(record.SortKey, nil); err != nil {
			return err
		}
		if err := putRecord(jobs, id, record); err != nil {
			return err
		}
	}
	return nil
}

func (q *BoltQueue) Complete(_ context.Context, leased Message, result Result, retryAt time.Time, reason string) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	id := leased.ID
	return q.db.Update(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(boltJobsBucket)
		record, err := getRecord(jobs, id)
		if err != nil {
			return err
		}
		if record.State != boltStateInflight {
			return fmt.Errorf("%w: %s is %s", ErrNotLeased, id, record.State)
		}
		if record.LeaseID != leased.LeaseID {
			return fmt.Errorf("%w: %s lease %q was superseded", ErrNotLeased, id, leased.LeaseID)
		}
		record.LeaseID = ""
		if err := tx.Bucket(boltInflightBucket).Delete(record.SortKey); err != nil {
			return err
		}
		switch result {
		case Ack:
			return jobs.Delete([]byte(id))
		case Retry:
			record.State = boltStateReady
			record.LastError = reason
			record.SortKey = sortKey(retryAt.UTC(), id)
			if err := tx.Bucket(boltReadyBucket).Put(record.SortKey, nil); err != nil {
				return err
			}
		default:
			record.State = boltStateDead
			record.LastError = reason
			record.SortKey = nil
			stamp, err := time.Now().UTC().MarshalText()
			if err != nil {
				return err
			}
			if err := tx.Bucket(boltDeadBucket).Put([]byte(id), stamp); err != nil {
				return err
			}
		}
		return putRecord(jobs, id, record)
	})
}

func (q *BoltQueue) Stats(_ context.Context) (Stats, error) {
	var stats Stats
	err := q.db.View(func(tx *bolt.Tx) error {
		stats.Ready = int64(tx.Bucket(boltReadyBucket).Stats().KeyN)
		stats.Inflight = int64(tx.Bucket(boltInflightBucket).Stats().KeyN)
		stats.Dead = int64(tx.Bucket(boltDeadBucket).Stats().KeyN)
		return nil
	})
	return stats, err
}

// DeadLetters lists parked ids with their last error.
func (q *BoltQueue) DeadLetters(_ context.Context) (map[string]string, error) {
	items := make(map[string]string)
	err := q.db.View(func(tx *bolt.Tx) error {
		jobs := tx.Bucket(boltJobsBucket)
		return tx.Bucket(boltDeadBucket).ForEach(func(key, _ []byte) error {
			record, err := getRecord(jobs, string(key))
			if err != nil {
				return err
			}
			items[string(key)] = record.LastError
			return nil
		})
	})
	return items, err
}

func (q *BoltQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.db.Close()
}

func getRecord(jobs *bolt.Bucket, id string) (boltRecord, error) {
	raw := jobs.Get([]byte(id))
	if raw == nil {
		return boltRecord{}, fmt.Errorf("%w: unknown id %s", ErrNotLeased, id)
	}
	var record boltRecord
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&record); err != nil {
		return boltRecord{}, fmt.Errorf("decode bolt record %s: %w", id, err)
	}
	return record, nil
}

func putRecord(jobs *bolt.Bucket, id string, record boltRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return jobs.Put([]byte(id), raw)
}

var _ Queue = (*BoltQueue)(nil)
