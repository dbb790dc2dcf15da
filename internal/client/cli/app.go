package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/silosync/internal/client/client"
	"github.com/dmitrijs2005/silosync/internal/client/config"
	"github.com/dmitrijs2005/silosync/internal/client/deadletter"
	"github.com/dmitrijs2005/silosync/internal/client/events"
	"github.com/dmitrijs2005/silosync/internal/client/network"
	"github.com/dmitrijs2005/silosync/internal/client/orchestrator"
	"github.com/dmitrijs2005/silosync/internal/client/services"
	"github.com/dmitrijs2005/silosync/internal/client/store"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/push"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config  *config.Config
	log     logging.Logger
	out     io.Writer
	api     *client.HTTPClient
	store   *store.LocalStore
	monitor *network.Monitor
	data    *services.DataService
	engine  *services.SyncEngine
	bus     *events.Bus
	orch    *orchestrator.Orchestrator

	mu     sync.Mutex
	Mode   Mode
	opened bool
	unsub  []func()
}

// NewApp builds every component from c. Nothing touches the network or the
// database until Open.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger, out io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	api, err := client.NewHTTPClient(c.ServerURL, client.Options{
		Timeout:      c.RequestTimeout,
		SessionToken: c.SessionToken,
	})
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	st := store.New(c.DatabaseDSN, bus, log)
	sinks := deadletter.Multi{deadletter.NewStoreSink(st)}
	if c.DeadLetterS3Bucket != "" {
		s3, err := deadletter.NewS3Sink(ctx, deadletter.S3Config{
			Bucket:    c.DeadLetterS3Bucket,
			Region:    c.DeadLetterS3Region,
			Endpoint:  c.DeadLetterS3Endpoint,
			AccessKey: c.DeadLetterS3AccessKey,
			SecretKey: c.DeadLetterS3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dead letter bucket: %w", err)
		}
		sinks = append(sinks, s3)
	}

	mon := network.NewMonitor(api, network.Options{
		Interval:     c.OnlineCheckInterval,
		ProbeTimeout: c.RequestTimeout,
	}, log)
	data := services.NewDataService(api, st, mon, log, services.DataOptions{StaleAfter: c.StaleAfter})

	syncOpts := c.SyncOptions()
	syncOpts.DeadLetters = sinks
	engine := services.NewSyncEngine(api, st, data, bus, log, syncOpts)

	orch := orchestrator.New(st, data, engine, mon, bus, log, orchestrator.Options{
		AutoSync:     c.AutoSync,
		SyncInterval: c.SyncInterval,
	})

	return &App{
		config:  c,
		log:     log,
		out:     out,
		api:     api,
		store:   st,
		monitor: mon,
		data:    data,
		engine:  engine,
		bus:     bus,
		orch:    orch,
	}, nil
}

// Open starts the orchestrator. withPush also subscribes to server push
// when the configuration enables it.
func (a *App) Open(ctx context.Context, withPush bool) error {
	if withPush && a.config.PushEnabled {
		l, err := push.NewListener(a.config.ServerURL, a.orch.HandlePush, a.log, push.Options{
			SessionToken: a.config.SessionToken,
		})
		if err != nil {
			return err
		}
		a.orch.WithPush(l)
	}

	a.unsub = append(a.unsub, a.bus.On(events.NetworkChanged, func(e events.Event) {
		if online, ok := e.Payload.(bool); ok && online {
			a.setMode(ModeOnline)
		} else {
			a.setMode(ModeOffline)
		}
	}))

	if err := a.orch.Start(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	a.opened = true
	a.mu.Unlock()
	return nil
}

// Close stops background work and closes the store.
func (a *App) Close() error {
	for _, u := range a.unsub {
		u()
	}
	a.unsub = nil
	return a.orch.Stop()
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	opened := a.opened
	a.mu.Unlock()
	if changed && opened {
		a.log.Info(context.Background(), "switched mode", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}
