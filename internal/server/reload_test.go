// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package server

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReload_Logging(t *testing.T) {
	out := &syncBuffer{}
	cfg := testConfig(t)
	cfg.Logging.Output = out
	cfg.Logging.Level = "info"
	s, err := New(cfg, WithVersion("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	s.Logger().Debug("before reload")
	assert.NotContains(t, out.String(), "before reload")

	next := testConfig(t)
	next.Logging.Level = "debug"
	next.Logging.Format = "json"
	require.NoError(t, s.Reload(next))

	s.Logger().Debug("after reload")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	last := lines[len(lines)-1]
	assert.Contains(t, last, `"msg":"after reload"`)
	assert.Equal(t, "debug", s.config.Logging.Level)
}

func TestReload_Invalid(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	next := testConfig(t)
	next.Logging.Level = "verbose"
	assert.Error(t, s.Reload(next))
	assert.Equal(t, "info", s.config.Logging.Level)
}
