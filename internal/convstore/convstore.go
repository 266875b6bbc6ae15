// Package convstore persists conversation state between WhatsApp turns.
//
// Each conversation is stored as a single JSON document keyed by phone
// number. Redis is the production backend; an in-memory store backs
// tests and local development.
package convstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
)

// Store loads and saves conversation state.
//
// Load never fails the message flow: on a miss or a backend error it
// returns a fresh conversation for the phone number, so a storage
// outage degrades to short-term amnesia instead of dropped messages.
type Store interface {
	Load(ctx context.Context, telefone string) *conv.Conversation
	Save(ctx context.Context, c *conv.Conversation) error
}

const keyPrefix = "conv:"

// RedisStore keeps conversations in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to Redis and verifies the connection. ttl <= 0
// disables expiry.
func NewRedis(addr, password string, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, logger: logger}, nil
}

// Load retrieves the conversation for telefone, or a fresh one.
func (s *RedisStore) Load(ctx context.Context, telefone string) *conv.Conversation {
	data, err := s.client.Get(ctx, keyPrefix+telefone).Bytes()
	if err == redis.Nil {
		return conv.New(telefone)
	}
	if err != nil {
		s.logger.Warn("conversation load failed, starting fresh",
			"telefone", telefone, "error", err)
		return conv.New(telefone)
	}

	var c conv.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn("conversation document corrupt, starting fresh",
			"telefone", telefone, "error", err)
		return conv.New(telefone)
	}
	if c.Telefone == "" {
		c.Telefone = telefone
	}
	return &c
}

// Save writes the conversation back, trimming history to the persist
// window first.
func (s *RedisStore) Save(ctx context.Context, c *conv.Conversation) error {
	c.Trim()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+c.Telefone, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is a process-local Store for tests and development.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{convs: make(map[string][]byte)}
}

// Load retrieves the conversation for telefone, or a fresh one.
func (s *MemoryStore) Load(_ context.Context, telefone string) *conv.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.convs[telefone]
	if !ok {
		return conv.New(telefone)
	}
	var c conv.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return conv.New(telefone)
	}
	return &c
}

// Save stores a snapshot of the conversation.
func (s *MemoryStore) Save(_ context.Context, c *conv.Conversation) error {
	c.Trim()

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.Telefone] = data
	return nil
}
