// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/preprocess"
)

// FileStore reads "<channel>.scaler.json" (or .yaml / .yml) from a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

var extensions = []string{".json", ".yaml", ".yml"}

// Load reads the first parameter file found for c.
func (s *FileStore) Load(_ context.Context, c channel.Channel) (preprocess.Params, error) {
	for _, ext := range extensions {
		path := filepath.Join(s.dir, c.ParamsName()+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return preprocess.Params{}, fmt.Errorf("read %s: %w", path, err)
		}

		var p preprocess.Params
		if ext == ".json" {
			err = json.Unmarshal(data, &p)
		} else {
			err = yaml.Unmarshal(data, &p)
		}
		if err != nil {
			return preprocess.Params{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if len(p.Lambdas) == 0 || len(p.Scales) == 0 || len(p.Means) == 0 {
			return preprocess.Params{}, fmt.Errorf("%s: lambdas, scales and means are all required", path)
		}
		return p, nil
	}
	return preprocess.Params{}, fmt.Errorf("%w: no %s.{json,yaml,yml} in %s", ErrNotFound, c.ParamsName(), s.dir)
}
