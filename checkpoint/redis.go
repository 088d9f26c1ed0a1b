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
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisKeyPrefix = "finelt:checkpoint:"
	redisIndexKey  = "finelt:checkpoints"
)

// RedisStore keeps each checkpoint under its own key and tracks run ids in a
// set for listing
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (store *RedisStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	buf, err := store.client.Get(ctx, redisKeyPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	if err != nil {
		return nil, err
	}

	return Decode(buf)
}

func (store *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	saved := cp.Clone()
	saved.touch()

	buf, err := saved.Encode()
	if err != nil {
		return err
	}

	_, err = store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+saved.RunID, buf, 0)
		pipe.SAdd(ctx, redisIndexKey, saved.RunID)
		return nil
	})

	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("RunID", saved.RunID).Msg("save checkpoint to redis failed")
	}

	return err
}

func (store *RedisStore) Delete(ctx context.Context, runID string) error {
	_, err := store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeyPrefix+runID)
		pipe.SRem(ctx, redisIndexKey, runID)
		return nil
	})

	return err
}

func (store *RedisStore) List(ctx context.Context) ([]*Checkpoint, error) {
	runIDs, err := store.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Checkpoint, 0, len(runIDs))
	for _, runID := range runIDs {
		cp, err := store.Load(ctx, runID)
		if errors.Is(err, ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		out = append(out, cp)
	}

	sortByCreated(out)
	return out, nil
}
