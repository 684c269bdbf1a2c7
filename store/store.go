// Package store persists named entity collections as flat JSON records.
//
// A Collection keeps every record of one entity type in a single JSON
// array stored under one Backend key. Every mutation rewrites the whole
// array; there is no indexing and no partial write.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/semanticallynull/gocab-backend/internal/clock"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrNotExist is returned by a Backend when nothing is stored under a key.
	ErrNotExist = errors.New("key does not exist")
	// ErrCorrupt marks a stored payload that is not a JSON array of objects.
	ErrCorrupt = errors.New("corrupt collection payload")
)

// KeyPrefix is prepended to the collection name to build its storage key.
const KeyPrefix = "gocab_"

// Backend is a byte-oriented key-value store holding one serialized
// collection per key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// Record is one stored entity, a flat JSON object keyed by field name.
type Record map[string]json.RawMessage

// ID returns the record's "id" field, or "" when it has none.
func (r Record) ID() string {
	var id string
	if raw, ok := r["id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	return id
}

// Decode unmarshals the record into v.
func (r Record) Decode(v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Collection is a named set of records persisted through a Backend. It is
// safe for concurrent use; mutations are serialized per collection.
type Collection struct {
	name    string
	backend Backend
	clock   clock.Clock
	logger  *slog.Logger
	newID   func() string

	mu sync.Mutex
}

type Option func(*Collection)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Collection) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithIDGenerator replaces the default UUIDv7 id generator.
func WithIDGenerator(f func() string) Option {
	return func(c *Collection) {
		if f != nil {
			c.newID = f
		}
	}
}

func NewCollection(name string, backend Backend, opts ...Option) *Collection {
	c := &Collection{
		name:    name,
		backend: backend,
		clock:   clock.Real(),
		logger:  slog.New(slog.DiscardHandler),
		newID:   newID,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("collection", name))
	return c
}

// newID returns a UUIDv7: a millisecond timestamp followed by random bits.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) key() string {
	return KeyPrefix + c.name
}

// All returns every record in insertion order.
func (c *Collection) All(ctx context.Context) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(ctx)
}

// Find returns the first record whose id matches, or ErrNotFound.
func (c *Collection) Find(ctx context.Context, id string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.read(ctx) {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Where returns every record whose top-level field equals value, compared
// as decoded JSON.
func (c *Collection) Where(ctx context.Context, field string, value any) ([]Record, error) {
	want, err := normalize(value)
	if err != nil {
		return nil, fmt.Errorf("where %s: %w", field, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var matches []Record
	for _, r := range c.read(ctx) {
		raw, ok := r[field]
		if !ok {
			continue
		}
		var got any
		if err := json.Unmarshal(raw, &got); err != nil {
			continue
		}
		if reflect.DeepEqual(got, want) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// Create stores attrs as a new record with a fresh id and creation and
// update timestamps, then persists the collection.
func (c *Collection) Create(ctx context.Context, attrs any) (Record, error) {
	r, err := toRecord(attrs)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", c.name, err)
	}

	now, err := json.Marshal(c.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	id, err := json.Marshal(c.newID())
	if err != nil {
		return nil, err
	}
	r["id"] = id
	r["createdAt"] = now
	r["updatedAt"] = now

	records = append(records, r)
	if err := c.save(ctx, records); err != nil {
		return nil, err
	}
	return r, nil
}

// Update shallow-merges partial over the record with the given id and
// refreshes its update timestamp. Fields absent from partial are kept.
// The id and creation timestamp cannot be overwritten. An unknown id
// returns ErrNotFound without writing.
func (c *Collection) Update(ctx context.Context, id string, partial any) (Record, error) {
	patch, err := toRecord(partial)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", c.name, err)
	}
	index := -1
	for i, r := range records {
		if r.ID() == id {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, ErrNotFound
	}

	now, err := json.Marshal(c.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	merged := make(Record, len(records[index])+len(patch))
	for k, v := range records[index] {
		merged[k] = v
	}
	for k, v := range patch {
		if k == "id" || k == "createdAt" {
			continue
		}
		merged[k] = v
	}
	merged["updatedAt"] = now
	records[index] = merged

	if err := c.save(ctx, records); err != nil {
		return nil, err
	}
	return merged, nil
}

// Seed stores records only when the collection is currently empty. Missing
// or zero timestamps are stamped. It reports whether anything was written.
func (c *Collection) Seed(ctx context.Context, records any) (bool, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return false, fmt.Errorf("seed %s: %w", c.name, err)
	}
	var seed []Record
	if err := json.Unmarshal(data, &seed); err != nil {
		return false, fmt.Errorf("seed %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.load(ctx)
	if err != nil {
		return false, fmt.Errorf("seed %s: %w", c.name, err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	now, err := json.Marshal(c.clock.Now().UTC())
	if err != nil {
		return false, err
	}
	for _, r := range seed {
		for _, field := range []string{"createdAt", "updatedAt"} {
			if isZeroTime(r[field]) {
				r[field] = now
			}
		}
	}

	if err := c.save(ctx, seed); err != nil {
		return false, err
	}
	c.logger.InfoContext(ctx, "collection seeded", slog.Int("records", len(seed)))
	return true, nil
}

// read loads the collection for the read paths. An unavailable backend or
// a corrupt payload is logged and reads as empty.
func (c *Collection) read(ctx context.Context) []Record {
	records, err := c.load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to load collection, treating as empty", "error", err)
		return nil
	}
	return records
}

// load reads the collection. A missing key is an empty collection; any
// other backend failure or a corrupt payload is an error, so writers never
// save over data they could not read.
func (c *Collection) load(ctx context.Context) ([]Record, error) {
	data, err := c.backend.Load(ctx, c.key())
	if errors.Is(err, ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.key(), err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("load %s: %w: %v", c.key(), ErrCorrupt, err)
	}
	return records, nil
}

func (c *Collection) save(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.name, err)
	}
	if err := c.backend.Save(ctx, c.key(), data); err != nil {
		return fmt.Errorf("save %s: %w", c.name, err)
	}
	return nil
}

var errNotObject = errors.New("attributes must encode to a JSON object")

func toRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil || r == nil {
		return nil, errNotObject
	}
	return r, nil
}

func isZeroTime(raw json.RawMessage) bool {
	if raw == nil {
		return true
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return false
	}
	return t.IsZero()
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(data, &out)
	return out, err
}
