package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/relay"
)

// RelayStore keeps relay records and the retry queue in Redis so queued
// alerts survive a relay restart.
//
// Layout:
//
//	<prefix>:relay:seq       INCR counter for message ids
//	<prefix>:relay:ids       sorted set of message ids, score = id
//	<prefix>:relay:msg:<id>  hash of one MessageRecord
//	<prefix>:relay:queue     list of QueueItem JSON, head at index 0
//
// Each record owns its key, so status updates on one message never contend
// with writes to another.
type RelayStore struct {
	client   *Client
	logger   *zap.Logger
	seqKey   string
	idsKey   string
	queueKey string
}

var _ relay.Store = (*RelayStore)(nil)

// Record hash fields
const (
	fieldRaw         = "raw"
	fieldFrom        = "from"
	fieldReceivedAt  = "received_at"
	fieldStatus      = "status"
	fieldAck         = "ack"
	fieldAttempts    = "attempts"
	fieldForwardedAt = "forwarded_at"
)

// updateIfExists sets hash fields only when the record already exists.
// Returns 0 for an unknown record.
var updateIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// NewRelayStore creates a store on client.
func NewRelayStore(client *Client, logger *zap.Logger) *RelayStore {
	return &RelayStore{
		client:   client,
		logger:   logger,
		seqKey:   client.key("relay", "seq"),
		idsKey:   client.key("relay", "ids"),
		queueKey: client.key("relay", "queue"),
	}
}

func (s *RelayStore) msgKey(id int64) string {
	return s.client.key("relay", "msg", strconv.FormatInt(id, 10))
}

func (s *RelayStore) CreateMessage(ctx context.Context, raw, from string, receivedAt time.Time) (*relay.MessageRecord, error) {
	id, err := s.client.rdb.Incr(ctx, s.seqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate message id: %w", err)
	}

	rec := &relay.MessageRecord{
		ID:         id,
		Raw:        raw,
		From:       from,
		ReceivedAt: receivedAt,
		Status:     relay.StatusReceived,
	}

	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.msgKey(id),
			fieldRaw, raw,
			fieldFrom, from,
			fieldReceivedAt, receivedAt.Format(time.RFC3339Nano),
			fieldStatus, relay.StatusReceived,
			fieldAttempts, 0,
		)
		pipe.ZAdd(ctx, s.idsKey, redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	return rec, nil
}

func (s *RelayStore) GetMessage(ctx context.Context, id int64) (*relay.MessageRecord, error) {
	fields, err := s.client.rdb.HGetAll(ctx, s.msgKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if len(fields) == 0 {
		return nil, relay.ErrNotFound
	}
	return decodeRecord(id, fields)
}

func (s *RelayStore) ListMessages(ctx context.Context) ([]*relay.MessageRecord, error) {
	ids, err := s.client.rdb.ZRange(ctx, s.idsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, field := range ids {
			id, _ := strconv.ParseInt(field, 10, 64)
			cmds[i] = pipe.HGetAll(ctx, s.msgKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]*relay.MessageRecord, 0, len(ids))
	for i, cmd := range cmds {
		id, err := strconv.ParseInt(ids[i], 10, 64)
		if err != nil || len(cmd.Val()) == 0 {
			continue
		}
		rec, err := decodeRecord(id, cmd.Val())
		if err != nil {
			s.logger.Warn("skipping undecodable message", zap.Int64("id", id), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RelayStore) MarkForwarded(ctx context.Context, id int64, ack string, attempts int, at time.Time) error {
	return s.update(ctx, id,
		fieldStatus, relay.StatusForwarded,
		fieldAck, ack,
		fieldAttempts, attempts,
		fieldForwardedAt, at.Format(time.RFC3339Nano),
	)
}

func (s *RelayStore) MarkQueued(ctx context.Context, id int64) error {
	return s.update(ctx, id, fieldStatus, relay.StatusQueued)
}

func (s *RelayStore) update(ctx context.Context, id int64, fieldValues ...any) error {
	n, err := updateIfExists.Run(ctx, s.client.rdb, []string{s.msgKey(id)}, fieldValues...).Int()
	if err != nil {
		return fmt.Errorf("update message %d: %w", id, err)
	}
	if n == 0 {
		return relay.ErrNotFound
	}
	return nil
}

func decodeRecord(id int64, fields map[string]string) (*relay.MessageRecord, error) {
	rec := &relay.MessageRecord{
		ID:     id,
		Raw:    fields[fieldRaw],
		From:   fields[fieldFrom],
		Status: fields[fieldStatus],
	}

	receivedAt, err := time.Parse(time.RFC3339Nano, fields[fieldReceivedAt])
	if err != nil {
		return nil, fmt.Errorf("decode received_at of %d: %w", id, err)
	}
	rec.ReceivedAt = receivedAt

	if v, ok := fields[fieldAttempts]; ok {
		if rec.Attempts, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("decode attempts of %d: %w", id, err)
		}
	}
	if v, ok := fields[fieldAck]; ok {
		ack := v
		rec.Ack = &ack
	}
	if v, ok := fields[fieldForwardedAt]; ok {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decode forwarded_at of %d: %w", id, err)
		}
		rec.ForwardedAt = &at
	}
	return rec, nil
}

func (s *RelayStore) Enqueue(ctx context.Context, item relay.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	if err := s.client.rdb.RPush(ctx, s.queueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func (s *RelayStore) Head(ctx context.Context) (*relay.QueueItem, error) {
	data, err := s.client.rdb.LIndex(ctx, s.queueKey, 0).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue head: %w", err)
	}

	var item relay.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode queue head: %w", err)
	}
	return &item, nil
}

func (s *RelayStore) UpdateHead(ctx context.Context, attempts int, lastError string) error {
	head, err := s.Head(ctx)
	if err != nil {
		return err
	}
	if head == nil {
		return relay.ErrNotFound
	}

	head.Attempts = attempts
	head.LastError = lastError
	data, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	if err := s.client.rdb.LSet(ctx, s.queueKey, 0, data).Err(); err != nil {
		return fmt.Errorf("update queue head: %w", err)
	}
	return nil
}

func (s *RelayStore) PopHead(ctx context.Context) error {
	err := s.client.rdb.LPop(ctx, s.queueKey).Err()
	if errors.Is(err, redis.Nil) {
		return relay.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("pop queue head: %w", err)
	}
	return nil
}

func (s *RelayStore) QueueLen(ctx context.Context) (int, error) {
	n, err := s.client.rdb.LLen(ctx, s.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}
