// Package redisstore 提供基于 Redis 的 graph.Checkpointer 实现。
//
// 每个线程的检查点按写入顺序保存在一个 LIST 中，线程索引保存在 ZSET 中
// （score 为最近一次写入时间）。
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/graph"
	"github.com/BaSui01/agentgraph/internal/tlsutil"
)

// =============================================================================
// 💾 Redis 检查点存储
// =============================================================================

// Config Redis 检查点存储配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 线程过期时间，0 表示永不过期
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 启用 TLS
	TLS bool `yaml:"tls" json:"tls"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		KeyPrefix:    "agentgraph",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// Store Redis 检查点存储
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// New 连接 Redis 并创建存储
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient 使用已有客户端创建存储，Close 时会关闭该客户端
func NewWithClient(client *redis.Client, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agentgraph"
	}

	s := &Store{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "checkpoint_redis")),
	}
	s.logger.Info("redis checkpoint store initialized",
		zap.String("key_prefix", prefix),
		zap.Duration("ttl", cfg.TTL),
	)
	return s
}

func (s *Store) threadKey(threadID string) string {
	return fmt.Sprintf("%s:checkpoints:%s", s.prefix, threadID)
}

func (s *Store) threadsKey() string {
	return s.prefix + ":threads"
}

func (s *Store) checkOpen() error {
	if s.closed {
		return fmt.Errorf("redis checkpoint store is closed")
	}
	return nil
}

// =============================================================================
// 🎯 Checkpointer 实现
// =============================================================================

// Put 追加检查点；列表与线程索引在同一事务中更新
func (s *Store) Put(ctx context.Context, cfg graph.CheckpointConfig, cp *graph.Checkpoint) error {
	if cfg.ThreadID == "" {
		return graph.ErrInvalidThread
	}
	if cp == nil {
		return fmt.Errorf("nil checkpoint for thread %s", cfg.ThreadID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	stored := cp.Clone()
	stored.ThreadID = cfg.ThreadID
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	score := float64(time.Now().UnixNano())
	if !stored.CreatedAt.IsZero() {
		score = float64(stored.CreatedAt.UnixNano())
	}

	key := s.threadKey(cfg.ThreadID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.ZAdd(ctx, s.threadsKey(), redis.Z{Score: score, Member: cfg.ThreadID})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("checkpoint write failed", zap.String("thread_id", cfg.ThreadID), zap.Error(err))
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// Get 返回最新检查点；线程不存在时返回 nil
func (s *Store) Get(ctx context.Context, cfg graph.CheckpointConfig) (*graph.Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, graph.ErrInvalidThread
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	data, err := s.client.LIndex(ctx, s.threadKey(cfg.ThreadID), -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decode(data)
}

// List 按写入顺序返回线程的全部检查点
func (s *Store) List(ctx context.Context, cfg graph.CheckpointConfig) ([]*graph.Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, graph.ErrInvalidThread
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.threadKey(cfg.ThreadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	out := make([]*graph.Checkpoint, 0, len(raw))
	for _, item := range raw {
		cp, err := decode([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// ListThreads 按最近活动时间返回线程 ID。已过期的线程会从索引中清理。
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRange(ctx, s.threadsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list threads: %w", err)
	}
	if s.ttl <= 0 {
		return ids, nil
	}

	live := ids[:0]
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.threadKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list threads: %w", err)
		}
		if n == 0 {
			s.client.ZRem(ctx, s.threadsKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// DeleteThread 删除线程的全部检查点
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.threadKey(threadID))
	pipe.ZRem(ctx, s.threadsKey(), threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete thread: %w", err)
	}
	return nil
}

// =============================================================================
// 🔧 生命周期
// =============================================================================

// Ping 检查连接是否健康
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭存储
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("redis checkpoint store closed")
	return s.client.Close()
}

func decode(data []byte) (*graph.Checkpoint, error) {
	var cp graph.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

var _ graph.ThreadStore = (*Store)(nil)
