package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/output"
	"github.com/vburojevic/dbgsync/internal/registry"
	"github.com/vburojevic/dbgsync/internal/relay"
	"github.com/vburojevic/dbgsync/internal/session"
	"github.com/vburojevic/dbgsync/internal/store"
	"go.uber.org/zap"
)

// drainTimeout bounds how long a command waits for peer deliveries on exit.
const drainTimeout = 5 * time.Second

// eventObserver prints lifecycle events as they happen.
type eventObserver struct {
	w output.Writer
}

func (o eventObserver) SessionStarted(_ context.Context, ev *domain.SessionStarted) {
	_ = o.w.Write(ev)
}

func (o eventObserver) MembershipChanged(_ context.Context, ev *domain.MembershipChanged) {
	_ = o.w.Write(ev)
}

func (o eventObserver) SessionObserverless(_ context.Context, ev *domain.SessionObserverless) {
	_ = o.w.Write(ev)
}

// app is the state one command runs against: the registry restored from the
// store, and a broadcaster that prints deliveries.
type app struct {
	mgr       *session.Manager
	store     *store.Store
	broadcast *relay.Broadcaster
	transport *output.Transport
	log       *zap.Logger
}

func openApp(ctx context.Context, globals *Globals) (*app, error) {
	log := newLogger(globals)

	path := globals.Store
	if path == "" && globals.Config != nil {
		path = globals.Config.Store.Path
	}
	if err := ensureStoreDir(path); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	projects, clients, err := st.Load(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var w output.Writer = discardWriter{}
	if !globals.Quiet {
		w = globals.writer()
	}
	transport := output.NewTransport(w)
	b := relay.NewBroadcaster(transport, relayConfig(globals), relay.WithLogger(log.Named("broadcast")))

	mgr := session.NewManager(registry.New(), b,
		session.WithObserver(eventObserver{w: w}),
		session.WithPersister(st),
		session.WithLogger(log.Named("session")),
	)
	if err := mgr.Restore(projects, clients); err != nil {
		_ = st.Close()
		return nil, err
	}
	log.Debug("state restored",
		zap.String("store", path),
		zap.Int("projects", len(projects)),
		zap.Int("clients", len(clients)))

	return &app{mgr: mgr, store: st, broadcast: b, transport: transport, log: log}, nil
}

// close drains pending deliveries, then closes the store.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	drainErr := a.broadcast.Close(ctx)
	a.transport.Close()
	_ = a.log.Sync()
	return errors.Join(drainErr, a.store.Close())
}

func ensureStoreDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func relayConfig(globals *Globals) relay.Config {
	if globals.Config == nil {
		return relay.Config{}
	}
	return relay.Config{
		MaxAttempts:  globals.Config.Relay.MaxAttempts,
		RetryBackoff: globals.Config.Relay.RetryBackoff,
		OutboxLimit:  globals.Config.Relay.OutboxLimit,
	}
}

// withApp runs fn against a freshly restored app and reports any error.
func withApp(globals *Globals, fn func(ctx context.Context, a *app) error) error {
	if err := validateFlags(globals); err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, globals)
	if err != nil {
		return outputErrorCommon(globals, "STORE_UNAVAILABLE", err.Error(), "check the --store path")
	}
	runErr := fn(ctx, a)
	closeErr := a.close()
	if runErr != nil {
		return outputError(globals, runErr)
	}
	if closeErr != nil {
		return outputErrorCommon(globals, "SHUTDOWN_FAILED", closeErr.Error())
	}
	return nil
}

type discardWriter struct{}

func (discardWriter) Write(any) error                            { return nil }
func (discardWriter) WriteError(string, string, ...string) error { return nil }
