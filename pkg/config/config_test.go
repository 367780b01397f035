// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
name: test-run
graphs:
  main:
    topology: reactive
    llm_client: openai-main
`

func TestLoadBytes_AppliesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Checkpoint.Backend)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	g := cfg.Graphs["main"]
	assert.Equal(t, 10, g.Loop.MaxTurns)
	assert.Equal(t, "always", g.OnToolError.Kind)
}

func TestLoadBytes_RejectsUnknownTopology(t *testing.T) {
	_, err := LoadBytes([]byte(`
graphs:
  main:
    topology: bogus
    llm_client: x
`))
	assert.Error(t, err)
}

func TestLoadBytes_RejectsMissingLLMClient(t *testing.T) {
	_, err := LoadBytes([]byte(`
graphs:
  main:
    topology: reactive
`))
	assert.Error(t, err)
}

func TestLoadBytes_RejectsNegativeMaxAttempts(t *testing.T) {
	_, err := LoadBytes([]byte(`
graphs:
  main:
    topology: reactive
    llm_client: x
    retries:
      think:
        max_attempts: -1
`))
	assert.Error(t, err)
}

func TestLoadBytes_ExpandsEnvVarsBeforeDecode(t *testing.T) {
	t.Setenv("LOOMSTATE_TEST_NAME", "from-env")
	cfg, err := LoadBytes([]byte(`
name: ${LOOMSTATE_TEST_NAME}
graphs:
  main:
    topology: reactive
    llm_client: x
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Name)
}

func TestLoadBytes_RejectsInvalidYAML(t *testing.T) {
	_, err := LoadBytes([]byte("not: [valid: yaml"))
	assert.Error(t, err)
}

func TestLoad_ReadsFromDisk(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-run", cfg.Name)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
