package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/circuitbreaker"
	"github.com/praxian-ai/scout/internal/metrics"
)

const (
	defaultTTL      = 24 * time.Hour
	maxLocalCached  = 10000
	maxTurnsPerConv = 100
)

// Manager stores conversations in Redis with a local cache in front.
type Manager struct {
	client      *circuitbreaker.RedisClient
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Conversation
	cacheAccess map[string]time.Time
	maxLocal    int
}

// NewManager connects to Redis and returns a conversation manager.
func NewManager(redisAddr string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	client := circuitbreaker.NewRedisClient("session-redis", rdb, circuitbreaker.GetRedisConfig(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         defaultTTL,
		localCache:  make(map[string]*Conversation),
		cacheAccess: make(map[string]time.Time),
		maxLocal:    maxLocalCached,
	}, nil
}

// Create starts a new conversation with a generated ID.
func (m *Manager) Create(ctx context.Context) (*Conversation, error) {
	return m.create(ctx, uuid.New().String())
}

// GetOrCreate returns the conversation with the given ID, creating it
// if it does not exist.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Conversation, error) {
	conv, err := m.Get(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
		return nil, err
	}
	return m.create(ctx, id)
}

func (m *Manager) create(ctx context.Context, id string) (*Conversation, error) {
	now := time.Now()
	conv := &Conversation{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Status:    StatusIdle,
		Turns:     make([]Turn, 0),
	}

	if err := m.save(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	m.mu.Lock()
	m.localCache[id] = conv
	m.cacheAccess[id] = now
	m.evictLocal()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Created conversation", zap.String("conversation_id", id))
	metrics.SessionsCreated.Inc()
	return conv, nil
}

// Get retrieves a conversation by ID, local cache first.
func (m *Manager) Get(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	conv, ok := m.localCache[id]
	m.mu.RUnlock()
	if ok {
		metrics.SessionCacheHits.Inc()
		if conv.IsExpired() {
			_ = m.Delete(ctx, id)
			return nil, ErrExpired
		}
		m.mu.Lock()
		m.cacheAccess[id] = time.Now()
		m.mu.Unlock()
		return conv, nil
	}
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, m.key(id))
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	conv = &Conversation{}
	if err := json.Unmarshal([]byte(data), conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if conv.IsExpired() {
		_ = m.Delete(ctx, id)
		return nil, ErrExpired
	}

	m.mu.Lock()
	m.localCache[id] = conv
	m.cacheAccess[id] = time.Now()
	m.evictLocal()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	return conv, nil
}

// Update persists a modified conversation.
func (m *Manager) Update(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation is nil")
	}
	conv.UpdatedAt = time.Now()

	if err := m.save(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	m.mu.Lock()
	m.localCache[conv.ID] = conv
	m.cacheAccess[conv.ID] = time.Now()
	m.mu.Unlock()
	return nil
}

// Delete removes a conversation from Redis and the local cache.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.client.Del(ctx, m.key(id)); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, id)
	delete(m.cacheAccess, id)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Deleted conversation", zap.String("conversation_id", id))
	return nil
}

// Extend pushes a conversation's expiry out by the given duration.
func (m *Manager) Extend(ctx context.Context, id string, duration time.Duration) error {
	conv, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	conv.ExpiresAt = time.Now().Add(duration)
	return m.Update(ctx, conv)
}

// AddTurn appends a turn to the conversation history, trimming old
// turns past the retention cap.
func (m *Manager) AddTurn(ctx context.Context, id string, turn Turn) error {
	conv, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	conv.Turns = append(conv.Turns, turn)
	if len(conv.Turns) > maxTurnsPerConv {
		conv.Turns = conv.Turns[len(conv.Turns)-maxTurnsPerConv:]
	}

	return m.Update(ctx, conv)
}

// CleanupExpired scans for and deletes expired conversations. Redis
// TTLs handle the normal case; this catches entries whose stored
// expiry was extended past the key TTL or vice versa.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.client.Keys(ctx, "conv:*")
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		data, err := m.client.Get(ctx, key)
		if err != nil {
			continue
		}
		var conv Conversation
		if err := json.Unmarshal([]byte(data), &conv); err != nil {
			continue
		}
		if conv.IsExpired() {
			if err := m.client.Del(ctx, key); err == nil {
				cleaned++
				m.mu.Lock()
				delete(m.localCache, conv.ID)
				delete(m.cacheAccess, conv.ID)
				m.mu.Unlock()
			}
		}
	}

	m.logger.Info("Cleaned up expired conversations", zap.Int("count", cleaned))
	return cleaned, nil
}

// Redis exposes the wrapped client for health checks.
func (m *Manager) Redis() *circuitbreaker.RedisClient {
	return m.client
}

// Close releases the Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) key(id string) string {
	return "conv:" + id
}

func (m *Manager) save(ctx context.Context, conv *Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	ttl := time.Until(conv.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, m.key(conv.ID), data, ttl)
}

// evictLocal drops the least recently used half of the local cache
// when it grows past maxLocal. Caller must hold m.mu.
func (m *Manager) evictLocal() {
	if len(m.localCache) <= m.maxLocal {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, accessEntry{id: id, time: m.cacheAccess[id]})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	for i := 0; i < m.maxLocal/2 && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
		metrics.SessionCacheEvictions.Inc()
	}
}
