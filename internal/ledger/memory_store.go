package ledger

import (
	"sort"
	"sync"
)

type InMemoryStore struct {
	mu sync.Mutex

	keys    map[string]KeyRecord
	configs map[string]ConfigVersionRecord
	entries map[string]AuditEntry
	outbox  map[string]ReviewOutboxRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		keys:    make(map[string]KeyRecord),
		configs: make(map[string]ConfigVersionRecord),
		entries: make(map[string]AuditEntry),
		outbox:  make(map[string]ReviewOutboxRecord),
	}
}

// WithTx holds the store lock for fn; a failed fn discards its writes.
func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{
		store:   s,
		keys:    map[string]KeyRecord{},
		configs: map[string]ConfigVersionRecord{},
		entries: map[string]AuditEntry{},
		outbox:  map[string]ReviewOutboxRecord{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.keys {
		s.keys[k] = v
	}
	for k, v := range tx.configs {
		s.configs[k] = v
	}
	for k, v := range tx.entries {
		s.entries[k] = v
	}
	for k, v := range tx.outbox {
		s.outbox[k] = v
	}
	return nil
}

func (s *InMemoryStore) PutKey(key KeyRecord) error {
	return s.WithTx(func(tx Tx) error { return tx.PutKey(key) })
}

func (s *InMemoryStore) GetKey(keyID string) (KeyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyID]
	return key, ok
}

func (s *InMemoryStore) PutConfigVersion(cfg ConfigVersionRecord) error {
	return s.WithTx(func(tx Tx) error { return tx.PutConfigVersion(cfg) })
}

func (s *InMemoryStore) GetConfigVersion(configDigest string) (ConfigVersionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[configDigest]
	return cfg, ok
}

func (s *InMemoryStore) PutAuditEntry(entry AuditEntry) error {
	return s.WithTx(func(tx Tx) error { return tx.PutAuditEntry(entry) })
}

func (s *InMemoryStore) GetAuditEntry(decisionID string) (AuditEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[decisionID]
	return entry, ok
}

func (s *InMemoryStore) ListByApplication(applicationID string) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []AuditEntry{}
	for _, e := range s.entries {
		if e.ApplicationID == applicationID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *InMemoryStore) ListCorrections(decisionID string) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []AuditEntry{}
	for _, e := range s.entries {
		if e.Supersedes != nil && *e.Supersedes == decisionID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *InMemoryStore) PutReviewOutbox(rec ReviewOutboxRecord) error {
	return s.WithTx(func(tx Tx) error { return tx.PutReviewOutbox(rec) })
}

func (s *InMemoryStore) GetReviewOutbox(notificationID string) (ReviewOutboxRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outbox[notificationID]
	return rec, ok
}

func (s *InMemoryStore) ListReviewOutboxDue(now string, limit int) ([]ReviewOutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ReviewOutboxRecord{}
	for _, rec := range s.outbox {
		if rec.Status != "pending" || rec.NextAttemptAt > now {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].NotificationID < out[j].NotificationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortEntries(entries []AuditEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt < entries[j].CreatedAt
		}
		return entries[i].DecisionID < entries[j].DecisionID
	})
}

// memTx stages writes; reads see staged writes first.
type memTx struct {
	store   *InMemoryStore
	keys    map[string]KeyRecord
	configs map[string]ConfigVersionRecord
	entries map[string]AuditEntry
	outbox  map[string]ReviewOutboxRecord
}

func (t *memTx) PutKey(key KeyRecord) error {
	if _, ok := t.GetKey(key.KeyID); ok {
		return nil
	}
	t.keys[key.KeyID] = key
	return nil
}

func (t *memTx) GetKey(keyID string) (KeyRecord, bool) {
	if key, ok := t.keys[keyID]; ok {
		return key, true
	}
	key, ok := t.store.keys[keyID]
	return key, ok
}

func (t *memTx) PutConfigVersion(cfg ConfigVersionRecord) error {
	if _, ok := t.GetConfigVersion(cfg.ConfigDigest); ok {
		return nil
	}
	t.configs[cfg.ConfigDigest] = cfg
	return nil
}

func (t *memTx) GetConfigVersion(configDigest string) (ConfigVersionRecord, bool) {
	if cfg, ok := t.configs[configDigest]; ok {
		return cfg, true
	}
	cfg, ok := t.store.configs[configDigest]
	return cfg, ok
}

func (t *memTx) PutAuditEntry(entry AuditEntry) error {
	if _, ok := t.GetAuditEntry(entry.DecisionID); ok {
		return ErrDuplicate
	}
	t.entries[entry.DecisionID] = entry
	return nil
}

func (t *memTx) GetAuditEntry(decisionID string) (AuditEntry, bool) {
	if entry, ok := t.entries[decisionID]; ok {
		return entry, true
	}
	entry, ok := t.store.entries[decisionID]
	return entry, ok
}

func (t *memTx) PutReviewOutbox(rec ReviewOutboxRecord) error {
	t.outbox[rec.NotificationID] = rec
	return nil
}

func (t *memTx) GetReviewOutbox(notificationID string) (ReviewOutboxRecord, bool) {
	if rec, ok := t.outbox[notificationID]; ok {
		return rec, true
	}
	rec, ok := t.store.outbox[notificationID]
	return rec, ok
}
