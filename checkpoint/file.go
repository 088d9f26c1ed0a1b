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
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

// FileStore writes one JSON document per run into a directory
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (store *FileStore) fileName(cp *Checkpoint) string {
	return filepath.Join(store.Dir, fmt.Sprintf("%s_%s.json", slug.Make(cp.Kind+" "+cp.Table), cp.RunID))
}

func (store *FileStore) find(runID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(store.Dir, fmt.Sprintf("*_%s.json", runID)))
	if err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	return matches[0], nil
}

func (store *FileStore) Load(ctx context.Context, runID string) (*Checkpoint, error) {
	fn, err := store.find(runID)
	if err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	cp, err := Decode(buf)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("FileName", fn).Msg("could not decode checkpoint file")
		return nil, err
	}

	return cp, nil
}

// Save writes the checkpoint to a temporary file and renames it into place
func (store *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := os.MkdirAll(store.Dir, 0o755); err != nil {
		return err
	}

	saved := cp.Clone()
	saved.touch()

	buf, err := saved.Encode()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(store.Dir, ".checkpoint-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	fn := store.fileName(saved)
	if err := os.Rename(tmpName, fn); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("FileName", fn).Int("NumPending", len(saved.Pending)).Msg("saved checkpoint")
	return nil
}

func (store *FileStore) Delete(_ context.Context, runID string) error {
	fn, err := store.find(runID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	if err := os.Remove(fn); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (store *FileStore) List(ctx context.Context) ([]*Checkpoint, error) {
	matches, err := filepath.Glob(filepath.Join(store.Dir, "*.json"))
	if err != nil {
		return nil, err
	}

	out := make([]*Checkpoint, 0, len(matches))
	for _, fn := range matches {
		buf, err := os.ReadFile(fn)
		if err != nil {
			return nil, err
		}

		cp, err := Decode(buf)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("FileName", fn).Msg("skipping unreadable checkpoint file")
			continue
		}

		out = append(out, cp)
	}

	sortByCreated(out)
	return out, nil
}
