// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package checkpoint

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/penny-vault/finelt/config"
)

// Store persists checkpoints keyed by run id
type Store interface {
	// Load returns ErrNotFound when no checkpoint exists for runID
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	Delete(ctx context.Context, runID string) error
	List(ctx context.Context) ([]*Checkpoint, error)
}

// NewStore returns the store selected by checkpoint.backend. db is only used
// by the database backend.
func NewStore(env *config.Env, db Querier) (Store, error) {
	cfg := env.Config
	switch cfg.Checkpoint.Backend {
	case config.CheckpointFile:
		return NewFileStore(cfg.Checkpoint.Dir), nil
	case config.CheckpointDatabase:
		if db == nil {
			return nil, fmt.Errorf("%w: database checkpoint backend requires db.url", config.ErrConfiguration)
		}
		return NewDBStore(db), nil
	case config.CheckpointRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("%w: unknown checkpoint backend %q", config.ErrConfiguration, cfg.Checkpoint.Backend)
	}
}

func sortByCreated(checkpoints []*Checkpoint) {
	slices.SortFunc(checkpoints, func(a, b *Checkpoint) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// MemoryStore keeps checkpoints in process memory. It is used for single
// entity runs that never need to resume.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]*Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]*Checkpoint),
	}
}

func (store *MemoryStore) Load(_ context.Context, runID string) (*Checkpoint, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	cp, ok := store.checkpoints[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	return cp.Clone(), nil
}

func (store *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	saved := cp.Clone()
	saved.touch()
	store.checkpoints[cp.RunID] = saved

	return nil
}

func (store *MemoryStore) Delete(_ context.Context, runID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.checkpoints, runID)
	return nil
}

func (store *MemoryStore) List(_ context.Context) ([]*Checkpoint, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := make([]*Checkpoint, 0, len(store.checkpoints))
	for _, cp := range store.checkpoints {
		out = append(out, cp.Clone())
	}

	sortByCreated(out)
	return out, nil
}
