package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/redis/go-redis/v9"
)

const (
	CallRinging = "ringing"
	CallActive  = "active"
)

type Call struct {
	ID         string     `json:"id"`
	ChatID     int64      `json:"chatId"`
	CallerID   int64      `json:"callerId"`
	CalleeID   int64      `json:"calleeId"`
	CallType   string     `json:"callType"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

func (c *Call) IsParty(userID int64) bool {
	return c.CallerID == userID || c.CalleeID == userID
}

// Duration is the talk time in whole seconds, zero if never answered.
func (c *Call) Duration(now time.Time) int64 {
	if c.AnsweredAt == nil {
		return 0
	}
	return int64(now.Sub(*c.AnsweredAt) / time.Second)
}

// CallStore keeps in-flight calls. Calls are not persisted.
type CallStore interface {
	Create(ctx context.Context, c *Call) error
	Get(ctx context.Context, id string) (*Call, error)
	// Answer moves a ringing call to active.
	Answer(ctx context.Context, id string, at time.Time) (*Call, error)
	// Remove deletes the call and returns its last state.
	Remove(ctx context.Context, id string) (*Call, error)
}

var errCallNotFound = &service.DomainError{Kind: service.ErrNotFound, Msg: "call not found"}

type redisCallStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCallStore(rdb *redis.Client, ttl time.Duration) CallStore {
	return &redisCallStore{rdb: rdb, ttl: ttl}
}

func callKey(id string) string { return "call:" + id }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisCallStore) Create(ctx context.Context, c *Call) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CallRinging
	}
	body, err := sonic.Marshal(c)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, callKey(c.ID), body, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store call: %w", err)
	}
	if !ok {
		return &service.DomainError{Kind: service.ErrInvalidTransition, Msg: "call already exists"}
	}
	return nil
}

func (s *redisCallStore) Get(ctx context.Context, id string) (*Call, error) {
	return s.get(ctx, s.rdb, id)
}

func (s *redisCallStore) get(ctx context.Context, c getter, id string) (*Call, error) {
	body, err := c.Get(ctx, callKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCallNotFound
	}
	if err != nil {
		return nil, err
	}
	var call Call
	if err := sonic.Unmarshal(body, &call); err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}
	return &call, nil
}

func (s *redisCallStore) Answer(ctx context.Context, id string, at time.Time) (*Call, error) {
	key := callKey(id)
	var out *Call
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		call, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if call.Status != CallRinging {
			return &service.DomainError{Kind: service.ErrInvalidTransition, Msg: "call is not ringing"}
		}
		call.Status = CallActive
		call.AnsweredAt = &at
		body, err := sonic.Marshal(call)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, body, s.ttl)
			return nil
		})
		out = call
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, &service.DomainError{Kind: service.ErrInvalidTransition, Msg: "call changed concurrently"}
	}
	return out, err
}

func (s *redisCallStore) Remove(ctx context.Context, id string) (*Call, error) {
	body, err := s.rdb.GetDel(ctx, callKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCallNotFound
	}
	if err != nil {
		return nil, err
	}
	var call Call
	if err := sonic.Unmarshal(body, &call); err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}
	return &call, nil
}
