package seen

import (
	"context"
	"encoding/json"
	"fmt"

	"emailfilter/internal/domain/mail"
	"emailfilter/internal/infrastructure/kv"
)

const DefaultKey = "seen-emails"

// Store persists the seen-set as a sorted JSON array under one key.
type Store struct {
	kv  kv.Store
	key string
}

func NewStore(store kv.Store, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{kv: store, key: key}
}

func (s *Store) Load(ctx context.Context) (mail.SeenSet, error) {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load seen-set: %w", err)
	}
	if !found || len(raw) == 0 {
		return mail.NewSeenSet(), nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode seen-set: %w", err)
	}
	return mail.NewSeenSet(ids...), nil
}

func (s *Store) Save(ctx context.Context, set mail.SeenSet) error {
	raw, err := json.Marshal(set.IDs())
	if err != nil {
		return fmt.Errorf("encode seen-set: %w", err)
	}
	if err := s.kv.Put(ctx, s.key, raw); err != nil {
		return fmt.Errorf("save seen-set: %w", err)
	}
	return nil
}
