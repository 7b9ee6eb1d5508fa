package services

import (
	"sync"
)

// ControlStatus is the operator-set state of one collector.
type ControlStatus string

const (
	ControlRunning ControlStatus = "running"
	ControlPaused  ControlStatus = "paused"
	ControlStopped ControlStatus = "stopped"
)

// ControlStore holds one status per collector name. Last write wins, no
// history. Collectors read it cooperatively at checkpoints; it never
// preempts an in-flight fetch.
type ControlStore struct {
	mu     sync.RWMutex
	states map[string]ControlStatus
}

// NewControlStore creates an empty store. Unset collectors report running.
func NewControlStore() *ControlStore {
	return &ControlStore{states: make(map[string]ControlStatus)}
}

// SetStatus records the status for a collector, replacing any prior value.
func (c *ControlStore) SetStatus(name string, status ControlStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[name] = status
}

// GetStatus returns the status for a collector, defaulting to running.
func (c *ControlStore) GetStatus(name string) ControlStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if status, ok := c.states[name]; ok {
		return status
	}
	return ControlRunning
}

// ShouldRun reports whether the collector is allowed to proceed.
func (c *ControlStore) ShouldRun(name string) bool {
	return c.GetStatus(name) == ControlRunning
}

// Statuses returns a copy of all explicitly set collector states.
func (c *ControlStore) Statuses() map[string]ControlStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]ControlStatus, len(c.states))
	for name, status := range c.states {
		out[name] = status
	}
	return out
}
