// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload propagation.

package control

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ConfigStore is a dynamic key/value map with atomic snapshot and listener support.
// Values are kept in their textual form, as read from the config file.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]string
	listeners []func(changed map[string]string)
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]string),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]string, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns the value of key.
func (cs *ConfigStore) Get(key string) (string, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges new values and notifies listeners with the keys whose
// value actually changed. Listeners run synchronously after the store is
// unlocked.
func (cs *ConfigStore) SetConfig(newCfg map[string]string) {
	cs.mu.Lock()
	changed := make(map[string]string)
	for k, v := range newCfg {
		if old, ok := cs.config[k]; !ok || old != v {
			changed[k] = v
		}
		cs.config[k] = v
	}
	listeners := append([]func(map[string]string){}, cs.listeners...)
	cs.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	for _, fn := range listeners {
		fn(changed)
	}
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(changed map[string]string)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// Int parses key as a decimal integer, returning def when the key is absent.
func (cs *ConfigStore) Int(key string, def int) (int, error) {
	v, ok := cs.Get(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config %s: %w", key, err)
	}
	return n, nil
}

// Bool parses key with ParseBool, returning def when the key is absent.
func (cs *ConfigStore) Bool(key string, def bool) (bool, error) {
	v, ok := cs.Get(key)
	if !ok {
		return def, nil
	}
	return ParseBool(key, v)
}

// Duration parses key as a Go duration, or as milliseconds when it is a
// bare integer. def is returned when the key is absent.
func (cs *ConfigStore) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := cs.Get(key)
	if !ok {
		return def, nil
	}
	return ParseDuration(key, v)
}

// String returns key or def.
func (cs *ConfigStore) String(key, def string) string {
	if v, ok := cs.Get(key); ok {
		return v
	}
	return def
}

// ParseBool accepts the usual strconv forms plus on/off and yes/no.
func ParseBool(key, v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config %s: %w", key, err)
	}
	return b, nil
}

// ParseDuration accepts "250ms"-style durations and bare millisecond counts.
func ParseDuration(key, v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	return d, nil
}
