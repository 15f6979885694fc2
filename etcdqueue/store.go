package etcdqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/feltlabs/beacon"
)

const (
	entriesSegment    = "entries"
	clearTokenSegment = "clear-token"
)

// Store implements beacon.Backend over etcd.
type Store struct {
	kv  clientv3.KV
	cfg Config
	seq *sequencer
}

var _ beacon.Backend = (*Store)(nil)

// NewStore constructs an etcd-backed Store with validated configuration.
func NewStore(client *clientv3.Client, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	if cfg.Prefix == "" {
		return nil, ErrPrefixRequired
	}

	return &Store{kv: client.KV, cfg: cfg, seq: newSequencer(cfg.Clock)}, nil
}

func (s *Store) entriesPrefix() string {
	return s.cfg.Prefix + "/" + entriesSegment + "/"
}

func (s *Store) entryKey(timestamp int64, seq uint32) string {
	return fmt.Sprintf("%s%019d-%010d", s.entriesPrefix(), timestamp, seq)
}

func (s *Store) clearTokenKey() string {
	return s.cfg.Prefix + "/" + clearTokenSegment
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// Push implements beacon.Backend.
func (s *Store) Push(ctx context.Context, entry beacon.RetryEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("etcdqueue: marshal entry: %w", err)
	}

	key := s.entryKey(entry.Timestamp, s.seq.next())
	if _, err := s.kv.Put(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("etcdqueue: put entry: %w", err)
	}

	return s.evictIfNeeded(ctx)
}

func (s *Store) evictIfNeeded(ctx context.Context) error {
	countResp, err := s.kv.Get(ctx, s.entriesPrefix(), clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return fmt.Errorf("etcdqueue: count entries: %w", err)
	}
	if int(countResp.Count) <= s.cfg.MaxNumber {
		return nil
	}

	oldest, err := s.kv.Get(ctx, s.entriesPrefix(),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
		clientv3.WithLimit(int64(s.cfg.BatchEvictionNumber)))
	if err != nil {
		return fmt.Errorf("etcdqueue: list eviction candidates: %w", err)
	}

	ops := make([]clientv3.Op, 0, len(oldest.Kvs))
	for _, kv := range oldest.Kvs {
		ops = append(ops, clientv3.OpDelete(string(kv.Key)))
	}
	if len(ops) == 0 {
		return nil
	}
	if _, err := s.kv.Txn(ctx).Then(ops...).Commit(); err != nil {
		return fmt.Errorf("etcdqueue: evict oldest entries: %w", err)
	}

	return nil
}

// Shift implements beacon.Backend.
func (s *Store) Shift(ctx context.Context) (beacon.RetryEntry, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Get(ctx, s.entriesPrefix(),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend), clientv3.WithLimit(1))
	if err != nil {
		return beacon.RetryEntry{}, false, fmt.Errorf("etcdqueue: get oldest entry: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return beacon.RetryEntry{}, false, nil
	}

	head := resp.Kvs[0]
	var entry beacon.RetryEntry
	if err := json.Unmarshal(head.Value, &entry); err != nil {
		return beacon.RetryEntry{}, false, fmt.Errorf("etcdqueue: unmarshal entry: %w", err)
	}

	txnResp, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(string(head.Key)), "=", head.ModRevision)).
		Then(clientv3.OpDelete(string(head.Key))).
		Commit()
	if err != nil {
		return beacon.RetryEntry{}, false, fmt.Errorf("etcdqueue: delete shifted entry: %w", err)
	}
	if !txnResp.Succeeded {
		// A concurrent shifter already removed this entry; the caller sees
		// an empty result for this round rather than retrying in a loop.
		return beacon.RetryEntry{}, false, nil
	}

	return entry, true, nil
}

// PushIfNotClearing implements beacon.Backend.
func (s *Store) PushIfNotClearing(ctx context.Context, entry beacon.RetryEntry, token string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("etcdqueue: marshal entry: %w", err)
	}

	cmp := clientv3.Compare(clientv3.Value(s.clearTokenKey()), "=", token)
	if token == "0" {
		// ClearToken reports "0" while the token key does not exist yet, and
		// etcd fails every value compare against a missing key.
		cmp = clientv3.Compare(clientv3.CreateRevision(s.clearTokenKey()), "=", 0)
	}

	key := s.entryKey(entry.Timestamp, s.seq.next())
	txnResp, err := s.kv.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, string(payload))).
		Commit()
	if err != nil {
		return fmt.Errorf("etcdqueue: requeue entry: %w", err)
	}
	if !txnResp.Succeeded {
		return nil
	}

	return s.evictIfNeeded(ctx)
}

// ClearToken implements beacon.Backend.
func (s *Store) ClearToken(ctx context.Context) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Get(ctx, s.clearTokenKey())
	if err != nil {
		return "", fmt.Errorf("etcdqueue: get clear token: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "0", nil
	}

	return string(resp.Kvs[0].Value), nil
}

// Clear implements beacon.Backend.
func (s *Store) Clear(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	token, err := s.ClearToken(ctx)
	if err != nil {
		return err
	}
	next, err := strconv.Atoi(token)
	if err != nil {
		next = 0
	}
	next++

	_, err = s.kv.Txn(ctx).
		Then(
			clientv3.OpPut(s.clearTokenKey(), strconv.Itoa(next)),
			clientv3.OpDelete(s.entriesPrefix(), clientv3.WithPrefix()),
		).
		Commit()
	if err != nil {
		return fmt.Errorf("etcdqueue: clear: %w", err)
	}

	return nil
}

// Peek implements beacon.Backend.
func (s *Store) Peek(ctx context.Context, count int) ([]beacon.RetryEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Get(ctx, s.entriesPrefix(),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend), clientv3.WithLimit(int64(count)))
	if err != nil {
		return nil, fmt.Errorf("etcdqueue: peek: %w", err)
	}

	return decodeEntries(resp.Kvs)
}

// PeekBack implements beacon.Backend.
func (s *Store) PeekBack(ctx context.Context, count int) ([]beacon.RetryEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Get(ctx, s.entriesPrefix(),
		clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend), clientv3.WithLimit(int64(count)))
	if err != nil {
		return nil, fmt.Errorf("etcdqueue: peek back: %w", err)
	}

	entries, err := decodeEntries(resp.Kvs)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return entries, nil
}

func decodeEntries(kvs []*mvccpb.KeyValue) ([]beacon.RetryEntry, error) {
	entries := make([]beacon.RetryEntry, 0, len(kvs))
	for _, kv := range kvs {
		var entry beacon.RetryEntry
		if err := json.Unmarshal(kv.Value, &entry); err != nil {
			return nil, fmt.Errorf("etcdqueue: unmarshal entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
