// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestProxyFields(t *testing.T) {
	revIndex := map[string]int{
		"http_proxy":  0,
		"https_proxy": 1,
		"no_proxy":    2,
	}
	envs := []string{"http_proxy", "https_proxy", "no_proxy"}
	envPreset := []string{"http://127.0.0.1:8080", "https://127.0.0.1:8443", "localhost,127.0.0.1"}

	// Each bit of the mask decides whether the env of that index is set.
	for mask := 0; mask <= 0b111; mask++ {
		for i, env := range envs {
			if (1<<i)&mask != 0 {
				t.Setenv(env, envPreset[i])
			} else {
				t.Setenv(env, "")
			}
		}

		for _, field := range findProxyFields() {
			idx, ok := revIndex[field.Key]
			require.True(t, ok)
			require.NotEqual(t, 0, (1<<idx)&mask)
			require.Equal(t, envPreset[idx], field.String)
		}
	}
}

type testStoreConfig struct {
	Dir   string `toml:"dir"`
	Quota string `toml:"quota"`
}

type testConfig struct {
	Name     string          `toml:"name"`
	Capacity int             `toml:"capacity"`
	Store    testStoreConfig `toml:"store"`
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "executor.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStrictDecodeValidFile(t *testing.T) {
	path := writeConfig(t, `
name = "executor-1"
capacity = 4

[store]
dir = "/tmp/blocks"
quota = "1GiB"
`)
	cfg := &testConfig{}
	require.NoError(t, StrictDecodeFile(path, "test", cfg))
	require.Equal(t, &testConfig{
		Name:     "executor-1",
		Capacity: 4,
		Store:    testStoreConfig{Dir: "/tmp/blocks", Quota: "1GiB"},
	}, cfg)
}

func TestStrictDecodeInvalidFile(t *testing.T) {
	path := writeConfig(t, `
name = "executor-1"
unknown = 1

[store]
size = 2
`)
	err := StrictDecodeFile(path, "test", &testConfig{})
	require.True(t, errors.Is(err, errors.ErrExecutorConfigUnknownItem))
	require.Regexp(t, "unknown, store.size", err.Error())

	path = writeConfig(t, `name = `)
	err = StrictDecodeFile(path, "test", &testConfig{})
	require.True(t, errors.Is(err, errors.ErrExecutorConfigInvalid))
}

func TestIgnoreStrictCheckItem(t *testing.T) {
	path := writeConfig(t, `
name = "executor-1"
[unknown]
max-size = 200
[unknown2]
max-size = 200
`)
	err := StrictDecodeFile(path, "test", &testConfig{}, "unknown", "unknown2")
	require.NoError(t, err)

	err = StrictDecodeFile(path, "test", &testConfig{}, "unknown")
	require.Regexp(t, "unknown2.max-size", err.Error())
}
