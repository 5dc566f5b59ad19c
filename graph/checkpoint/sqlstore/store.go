// Package sqlstore persists graph checkpoints in a relational database through
// gorm. PostgreSQL, MySQL and SQLite are supported; the table layout matches the
// migrations shipped in internal/migration.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentgraph/graph"
)

// TableName is the checkpoint table.
const TableName = "graph_checkpoints"

// Record is one checkpoint row. Seq orders a thread's history.
type Record struct {
	Seq          uint64    `gorm:"column:seq;primaryKey;autoIncrement;index:idx_graph_checkpoints_thread_seq,priority:2"`
	CheckpointID string    `gorm:"column:checkpoint_id;size:64;not null;uniqueIndex:idx_graph_checkpoints_checkpoint_id"`
	ThreadID     string    `gorm:"column:thread_id;size:255;not null;index:idx_graph_checkpoints_thread_seq,priority:1"`
	Step         int       `gorm:"column:step;not null"`
	State        string    `gorm:"column:state;type:text;not null"`
	NextNode     string    `gorm:"column:next_node;size:255"`
	Source       string    `gorm:"column:source;size:32;not null"`
	Interrupt    string    `gorm:"column:interrupt;type:text"`
	Sends        string    `gorm:"column:sends;type:text"`
	Metadata     string    `gorm:"column:metadata;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string { return TableName }

// Store is a graph.Checkpointer backed by gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps db. Call AutoMigrate, or run the SQL migrations, before use.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "checkpoint_sql")),
	}
}

// AutoMigrate creates or updates the checkpoint table.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// Put inserts a checkpoint row.
func (s *Store) Put(ctx context.Context, cfg graph.CheckpointConfig, cp *graph.Checkpoint) error {
	if cfg.ThreadID == "" {
		return graph.ErrInvalidThread
	}
	if cp == nil {
		return fmt.Errorf("nil checkpoint for thread %s", cfg.ThreadID)
	}
	rec, err := toRecord(cfg.ThreadID, cp)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.logger.Error("checkpoint insert failed",
			zap.String("thread_id", cfg.ThreadID),
			zap.String("checkpoint_id", cp.ID),
			zap.Error(err),
		)
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Get returns the newest checkpoint of the thread, or nil.
func (s *Store) Get(ctx context.Context, cfg graph.CheckpointConfig) (*graph.Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, graph.ErrInvalidThread
	}
	var rows []Record
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", cfg.ThreadID).
		Order("seq DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toCheckpoint()
}

// List returns the thread's checkpoints, oldest first.
func (s *Store) List(ctx context.Context, cfg graph.CheckpointConfig) ([]*graph.Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, graph.ErrInvalidThread
	}
	var rows []Record
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", cfg.ThreadID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	out := make([]*graph.Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rows[i].toCheckpoint()
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// ListThreads returns distinct thread ids in lexical order.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Distinct("thread_id").
		Order("thread_id").
		Pluck("thread_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	return ids, nil
}

// DeleteThread removes every checkpoint of the thread.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	res := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&Record{})
	if res.Error != nil {
		return fmt.Errorf("delete thread: %w", res.Error)
	}
	s.logger.Info("thread deleted", zap.String("thread_id", threadID), zap.Int64("checkpoints", res.RowsAffected))
	return nil
}

func toRecord(threadID string, cp *graph.Checkpoint) (*Record, error) {
	rec := &Record{
		CheckpointID: cp.ID,
		ThreadID:     threadID,
		Step:         cp.Step,
		State:        string(cp.State),
		NextNode:     cp.NextNode,
		Source:       string(cp.Source),
		CreatedAt:    cp.CreatedAt,
	}
	if rec.State == "" {
		rec.State = "null"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if cp.Interrupt != nil {
		data, err := json.Marshal(cp.Interrupt)
		if err != nil {
			return nil, fmt.Errorf("encode interrupt: %w", err)
		}
		rec.Interrupt = string(data)
	}
	if len(cp.Sends) > 0 {
		data, err := json.Marshal(cp.Sends)
		if err != nil {
			return nil, fmt.Errorf("encode sends: %w", err)
		}
		rec.Sends = string(data)
	}
	if len(cp.Metadata) > 0 {
		data, err := json.Marshal(cp.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		rec.Metadata = string(data)
	}
	return rec, nil
}

func (r *Record) toCheckpoint() (*graph.Checkpoint, error) {
	cp := &graph.Checkpoint{
		ID:        r.CheckpointID,
		ThreadID:  r.ThreadID,
		Step:      r.Step,
		State:     json.RawMessage(r.State),
		NextNode:  r.NextNode,
		Source:    graph.CheckpointSource(r.Source),
		CreatedAt: r.CreatedAt,
	}
	if r.Interrupt != "" {
		var intr graph.InterruptRecord
		if err := json.Unmarshal([]byte(r.Interrupt), &intr); err != nil {
			return nil, fmt.Errorf("checkpoint %s: decode interrupt: %w", r.CheckpointID, err)
		}
		cp.Interrupt = &intr
	}
	if r.Sends != "" {
		if err := json.Unmarshal([]byte(r.Sends), &cp.Sends); err != nil {
			return nil, fmt.Errorf("checkpoint %s: decode sends: %w", r.CheckpointID, err)
		}
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("checkpoint %s: decode metadata: %w", r.CheckpointID, err)
		}
	}
	return cp, nil
}

var _ graph.ThreadStore = (*Store)(nil)
