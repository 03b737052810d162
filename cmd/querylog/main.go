// File: cmd/querylog/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// querylog serves the query monitor UI over HTTP and pushes query events to
// every connected browser over WebSocket. Events come from a NATS subject,
// from newline-delimited JSON on stdin, or from the built-in demo feed.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/querylog/control"
	"github.com/momentics/querylog/events"
	"github.com/momentics/querylog/feed"
	"github.com/momentics/querylog/internal/logging"
	"github.com/momentics/querylog/server"
)

const (
	keyTrace       = "trace"
	keyNATSURL     = "nats_url"
	keyNATSSubject = "nats_subject"
)

func main() {
	configPath := flag.String("config", "", "config file (name = value lines)")
	httpPort := flag.Int("http-port", server.DefaultHTTPPort, "HTTP port for the UI")
	wsPort := flag.Int("ws-port", server.DefaultHTTPPort+1, "WebSocket port (defaults to http-port+1)")
	bind := flag.String("bind", "", "IPv4 address to bind, empty for all interfaces")
	trace := flag.Bool("trace", false, "enable debug logging")
	natsURL := flag.String("nats-url", "", "NATS server URL to consume events from")
	natsSubject := flag.String("nats-subject", "querylog.events", "NATS subject carrying event JSON")
	stdin := flag.Bool("stdin", false, "read newline-delimited event JSON from stdin")
	demo := flag.Duration("demo", 0, "publish synthetic query events at this interval")
	flag.Parse()

	if err := run(options{
		configPath:  *configPath,
		httpPort:    *httpPort,
		wsPort:      *wsPort,
		bind:        *bind,
		trace:       *trace,
		natsURL:     *natsURL,
		natsSubject: *natsSubject,
		stdin:       *stdin,
		demo:        *demo,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "querylog:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	httpPort    int
	wsPort      int
	bind        string
	trace       bool
	natsURL     string
	natsSubject string
	stdin       bool
	demo        time.Duration
}

// overrides returns the store values for flags given on the command line.
func (o options) overrides() map[string]string {
	out := map[string]string{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-port":
			out[server.KeyHTTPPort] = strconv.Itoa(o.httpPort)
		case "ws-port":
			out[server.KeyWSPort] = strconv.Itoa(o.wsPort)
		case "bind":
			out[server.KeyBindAddress] = o.bind
		case "trace":
			out[keyTrace] = strconv.FormatBool(o.trace)
		case "nats-url":
			out[keyNATSURL] = o.natsURL
		case "nats-subject":
			out[keyNATSSubject] = o.natsSubject
		}
	})
	return out
}

func run(o options) error {
	store := control.NewConfigStore()
	if o.configPath != "" {
		values, err := control.LoadFile(o.configPath)
		if err != nil {
			return err
		}
		store.SetConfig(values)
	}
	flags := o.overrides()
	store.SetConfig(flags)

	trace, err := store.Bool(keyTrace, false)
	if err != nil {
		return err
	}
	root := logging.New(os.Stderr, trace)
	log := logging.For(root, "main")

	cfg, err := server.ConfigFromStore(store, nil)
	if err != nil {
		return err
	}

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)

	srv, err := server.New(cfg,
		server.WithLogger(root),
		server.WithMetrics(metrics),
		server.WithProbes(probes))
	if err != nil {
		return err
	}

	var watcher *control.Watcher
	if o.configPath != "" {
		watcher, err = control.NewWatcher(o.configPath, store, logging.For(root, "control"))
		if err != nil {
			return err
		}
		defer watcher.Close()
		store.OnReload(func(changed map[string]string) {
			applyReload(log, store, flags, changed)
		})
		watcher.Start()
	}

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var feeds sync.WaitGroup

	if url := store.String(keyNATSURL, ""); url != "" {
		feedLog := logging.For(root, "feed")
		nc, err := feed.ConnectNATS(url, feedLog)
		if err != nil {
			_ = srv.Stop()
			return err
		}
		defer nc.Drain()
		if _, err := feed.SubscribeNATS(nc, store.String(keyNATSSubject, o.natsSubject), srv, feedLog); err != nil {
			_ = srv.Stop()
			return err
		}
	}

	if o.stdin {
		feeds.Add(1)
		go func() {
			defer feeds.Done()
			feedLog := logging.For(root, "feed")
			accepted, skipped, err := feed.ReadLines(ctx, os.Stdin, srv, cfg.MaxMessageSize, feedLog)
			ev := feedLog.Info()
			if err != nil && ctx.Err() == nil {
				ev = feedLog.Error().Err(err)
			}
			ev.Int("accepted", accepted).Int("skipped", skipped).Msg("stdin feed finished")
		}()
	}

	if o.demo > 0 {
		pub := events.NewPublisher(srv, events.WithLogger(logging.For(root, "demo")))
		feeds.Add(1)
		go func() {
			defer feeds.Done()
			feed.Demo(ctx, pub, o.demo)
		}()
	}

	log.Info().
		Int("http_port", srv.HTTPPort()).
		Int("ws_port", srv.WSPort()).
		Msg("querylog running")

	waitForSignals(log, srv, probes, watcher)

	cancel()
	err = srv.Stop()
	// The stdin reader cannot be interrupted while blocked in Read.
	if !o.stdin {
		feeds.Wait()
	}
	return err
}

// applyReload re-applies hot-reloadable keys. Everything else needs a restart.
func applyReload(log zerolog.Logger, store *control.ConfigStore, flags, changed map[string]string) {
	for key, v := range changed {
		if _, pinned := flags[key]; pinned {
			continue
		}
		switch key {
		case keyTrace:
			on, err := control.ParseBool(key, v)
			if err != nil {
				log.Warn().Err(err).Msg("ignoring trace value")
				continue
			}
			logging.SetTrace(on)
			log.Info().Bool("trace", on).Msg("trace level changed")
		default:
			log.Warn().Str("key", key).Msg("config change takes effect after restart")
		}
	}
	// Command line values keep precedence over the file.
	if len(flags) > 0 {
		store.SetConfig(flags)
	}
}

func waitForSignals(log zerolog.Logger, srv *server.Server, probes *control.DebugProbes, watcher *control.Watcher) {
	sigCh := make(chan os.Signal, 1)
	var all []os.Signal
	all = append(all, stopSignals...)
	all = append(all, dumpSignals...)
	all = append(all, reloadSignals...)
	signal.Notify(sigCh, all...)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		switch {
		case isOneOf(sig, dumpSignals):
			control.Dump(log, probes, srv.Metrics())
		case isOneOf(sig, reloadSignals):
			if watcher == nil {
				log.Warn().Msg("no config file to reload")
				continue
			}
			if err := watcher.Reload(); err != nil {
				log.Error().Err(err).Msg("config reload failed")
			}
		default:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return
		}
	}
}

func isOneOf(sig os.Signal, set []os.Signal) bool {
	for _, s := range set {
		if s == sig {
			return true
		}
	}
	return false
}
