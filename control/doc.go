// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for the query log
// server.
//
// Provides concurrent-safe state handling primitives including:
//   - a "name = value" config file reader and a live ConfigStore
//   - an fsnotify based watcher that reloads the file on change
//   - counters and values in a MetricsRegistry
//   - named probes in DebugProbes, dumped on demand
package control
