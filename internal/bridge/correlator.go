package bridge

import (
	"sync"

	"prettycode/pkg/logger"
)

// fingerprintFields are checked in order; the first non-empty string value
// becomes the fingerprint's primary argument.
var fingerprintFields = []string{"file_path", "command"}

// Fingerprint derives the correlation key for a tool invocation. The key is
// name + ":" + primary argument and is not guaranteed unique: two concurrent
// invocations of the same tool on the same argument collide.
func Fingerprint(toolName string, input map[string]any) string {
	primary := ""
	for _, field := range fingerprintFields {
		if v, ok := input[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				primary = s
				break
			}
		}
	}
	return toolName + ":" + primary
}

// Correlator maps tool-invocation fingerprints to the most recently seen
// invocation id so a permission callback, which arrives without an id, can be
// matched to the tool_use block that triggered it.
//
// Correlation is heuristic: on a fingerprint collision the last tracked id
// wins, which can misattribute a decision when identical calls race. This
// mirrors the upstream protocol's limitation and is pinned by tests.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]string // fingerprint -> invocation id
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]string)}
}

// Track records a tool_use block, overwriting any prior entry for the same
// fingerprint (last-write-wins).
func (c *Correlator) Track(id, toolName string, input map[string]any) {
	fp := Fingerprint(toolName, input)

	c.mu.Lock()
	c.pending[fp] = id
	c.mu.Unlock()

	logger.Debug().Str("fingerprint", fp).Str("tool_use_id", id).Msg("Tracking tool use")
}

// Resolve looks up the invocation id for a permission check.
func (c *Correlator) Resolve(toolName string, input map[string]any) (string, bool) {
	fp := Fingerprint(toolName, input)

	c.mu.Lock()
	id, ok := c.pending[fp]
	c.mu.Unlock()

	return id, ok
}

// Release removes every fingerprint entry currently mapped to id. Called when
// the invocation's result block arrives; also clears duplicates defensively.
func (c *Correlator) Release(id string) {
	c.mu.Lock()
	for fp, v := range c.pending {
		if v == id {
			delete(c.pending, fp)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of tracked entries.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
