// Package mongostore persists graph checkpoints in MongoDB.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/graph"
)

// Config selects the MongoDB deployment and collection.
type Config struct {
	URI            string        `yaml:"uri" json:"uri"`
	Database       string        `yaml:"database" json:"database"`
	Collection     string        `yaml:"collection" json:"collection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// DefaultConfig returns a local deployment configuration.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "agentgraph",
		Collection:     "graph_checkpoints",
		ConnectTimeout: 10 * time.Second,
	}
}

type document struct {
	ID           bson.ObjectID     `bson:"_id,omitempty"`
	Seq          int64             `bson:"seq"`
	CheckpointID string            `bson:"checkpoint_id"`
	ThreadID     string            `bson:"thread_id"`
	Step         int               `bson:"step"`
	State        string            `bson:"state"`
	NextNode     string            `bson:"next_node,omitempty"`
	Source       string            `bson:"source"`
	Interrupt    *interruptDoc     `bson:"interrupt,omitempty"`
	Sends        []sendDoc         `bson:"sends,omitempty"`
	Metadata     map[string]string `bson:"metadata,omitempty"`
	CreatedAt    time.Time         `bson:"created_at"`
}

type sendDoc struct {
	Node    string `bson:"node"`
	Payload string `bson:"payload"`
}

type interruptDoc struct {
	Node  string `bson:"node"`
	Phase string `bson:"phase"`
	Value string `bson:"value,omitempty"`
}

// Store is a graph.Checkpointer backed by one MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
	owned  bool

	mu      sync.Mutex
	lastSeq int64
}

// New connects to MongoDB and ensures the collection indexes exist.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	def := DefaultConfig()
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := NewWithCollection(client.Database(cfg.Database).Collection(cfg.Collection), logger)
	s.client = client
	s.owned = true
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewWithCollection wraps an existing collection. Close leaves its client open.
func NewWithCollection(coll *mongo.Collection, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		coll:   coll,
		logger: logger.With(zap.String("component", "checkpoint_mongo")),
	}
}

// EnsureIndexes creates the (thread_id, seq) and unique checkpoint_id indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "checkpoint_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// nextSeq returns a strictly increasing sequence derived from the clock.
func (s *Store) nextSeq(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := now.UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// Put inserts a checkpoint document.
func (s *Store) Put(ctx context.Context, cfg graph.CheckpointConfig, cp *graph.Checkpoint) error {
	if cfg.ThreadID == "" {
		return graph.ErrInvalidThread
	}
	if cp == nil {
		return fmt.Errorf("nil checkpoint for thread %s", cfg.ThreadID)
	}
	doc := toDocument(cfg.ThreadID, cp)
	doc.Seq = s.nextSeq(time.Now())
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		s.logger.Error("checkpoint insert failed", zap.String("thread_id", cfg.ThreadID), zap.Error(err))
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Get returns the newest checkpoint of the thread, or nil.
func (s *Store) Get(ctx context.Context, cfg graph.CheckpointConfig) (*graph.Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, graph.ErrInvalidThread
	}
	var doc document
	err := s.coll.FindOne(ctx,
		bson.D{{Key: "thread_id", Value: cfg.ThreadID}},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}, {Key: "_id", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find checkpoint: %w", err)
	}
	return doc.toCheckpoint(), nil
}

// List returns the thread's checkpoints, oldest first.
func (s *Store) List(ctx context.Context, cfg graph.CheckpointConfig) ([]*graph.Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, graph.ErrInvalidThread
	}
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "thread_id", Value: cfg.ThreadID}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find checkpoints: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode checkpoints: %w", err)
	}
	out := make([]*graph.Checkpoint, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toCheckpoint())
	}
	return out, nil
}

// ListThreads returns the distinct thread ids.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.coll.Distinct(ctx, "thread_id", bson.D{}).Decode(&ids); err != nil {
		return nil, fmt.Errorf("distinct threads: %w", err)
	}
	return ids, nil
}

// DeleteThread removes every checkpoint of the thread.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "thread_id", Value: threadID}})
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	s.logger.Info("thread deleted", zap.String("thread_id", threadID), zap.Int64("checkpoints", res.DeletedCount))
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

// Close disconnects the client when the store created it.
func (s *Store) Close(ctx context.Context) error {
	if !s.owned || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func toDocument(threadID string, cp *graph.Checkpoint) document {
	doc := document{
		CheckpointID: cp.ID,
		ThreadID:     threadID,
		Step:         cp.Step,
		State:        string(cp.State),
		NextNode:     cp.NextNode,
		Source:       string(cp.Source),
		CreatedAt:    cp.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if cp.Interrupt != nil {
		doc.Interrupt = &interruptDoc{
			Node:  cp.Interrupt.Node,
			Phase: string(cp.Interrupt.Phase),
			Value: string(cp.Interrupt.Value),
		}
	}
	for _, ps := range cp.Sends {
		doc.Sends = append(doc.Sends, sendDoc{Node: ps.Node, Payload: string(ps.Payload)})
	}
	if len(cp.Metadata) > 0 {
		doc.Metadata = make(map[string]string, len(cp.Metadata))
		for k, v := range cp.Metadata {
			doc.Metadata[k] = v
		}
	}
	return doc
}

func (d *document) toCheckpoint() *graph.Checkpoint {
	cp := &graph.Checkpoint{
		ID:        d.CheckpointID,
		ThreadID:  d.ThreadID,
		Step:      d.Step,
		NextNode:  d.NextNode,
		Source:    graph.CheckpointSource(d.Source),
		CreatedAt: d.CreatedAt,
		Metadata:  d.Metadata,
	}
	if d.State != "" {
		cp.State = json.RawMessage(d.State)
	}
	if d.Interrupt != nil {
		cp.Interrupt = &graph.InterruptRecord{
			Node:  d.Interrupt.Node,
			Phase: graph.InterruptPhase(d.Interrupt.Phase),
		}
		if d.Interrupt.Value != "" {
			cp.Interrupt.Value = json.RawMessage(d.Interrupt.Value)
		}
	}
	for _, sd := range d.Sends {
		cp.Sends = append(cp.Sends, graph.PendingSend{Node: sd.Node, Payload: json.RawMessage(sd.Payload)})
	}
	return cp
}

var _ graph.ThreadStore = (*Store)(nil)
