// Package modulith wires the toolkit's independently testable pieces
// (Store, Registry, Multicaster, Router, Supervisor, broker Senders,
// distributed lock, worker pool) into one running instance from a single
// Config, the way the teacher's extension manager assembles a running
// server from its own config.Config.
package modulith

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/ncobase/modulith/broker"
	brokerkafka "github.com/ncobase/modulith/broker/kafka"
	brokerrabbitmq "github.com/ncobase/modulith/broker/rabbitmq"
	"github.com/ncobase/modulith/config"
	"github.com/ncobase/modulith/event"
	"github.com/ncobase/modulith/expr"
	"github.com/ncobase/modulith/lock"
	"github.com/ncobase/modulith/logging"
	_ "github.com/ncobase/modulith/store/mongodb"
	_ "github.com/ncobase/modulith/store/neo4j"
	_ "github.com/ncobase/modulith/store/postgres"
	"github.com/ncobase/modulith/worker"
)

// Runtime is a fully wired Event Publication Registry plus externalization
// pipeline: the single object a host application starts and stops.
type Runtime struct {
	Store       event.Store
	Registry    *event.Registry
	Pool        *worker.Pool
	Multicaster *event.Multicaster
	Router      *event.Router
	Supervisor  *event.Supervisor

	closers []func(context.Context) error
}

// New assembles a Runtime from cfg. republisher and markerFn are supplied
// by the host application: republisher knows how to re-deserialize and
// re-dispatch a stored event, and markerFn recognizes which events carry a
// routing target (both are necessarily domain-specific, so neither can be
// derived from cfg alone).
func New(ctx context.Context, cfg *config.Config, republisher event.Republisher, markerFn event.MarkerFunc) (*Runtime, error) {
	store, err := event.OpenStore(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("modulith: open store: %w", err)
	}

	registry := event.NewRegistry(store, event.JSONSerializer{})

	taskTimeout := cfg.Async.TerminationTimeout
	if taskTimeout <= 0 {
		taskTimeout = time.Minute
	}
	pool := worker.NewPool(&worker.Config{
		MaxWorkers:  16,
		QueueSize:   1024,
		TaskTimeout: taskTimeout,
	})
	pool.Start()

	rt := &Runtime{
		Store:    store,
		Registry: registry,
		Pool:     pool,
	}
	rt.closers = append(rt.closers, func(context.Context) error { pool.Stop(context.Background()); return nil })

	rt.Multicaster = event.NewMulticaster(registry, pool)

	if cfg.Externalization.Enabled {
		sender, senderCloser, err := buildSender(cfg)
		if err != nil {
			return nil, err
		}
		if senderCloser != nil {
			rt.closers = append(rt.closers, senderCloser)
		}

		mode := event.ModeImmediate
		var outbox event.Outbox
		if cfg.Externalization.Mode == "outbox" {
			mode = event.ModeOutbox
			outbox = event.NewPoolOutbox(pool, sender)
		}

		router := event.NewRouter(event.RouterConfig{
			Enabled:                  true,
			Mode:                     mode,
			SerializeExternalization: cfg.Externalization.SerializeExternalization,
		}, markerFn, expr.NewEvaluator(expr.DefaultConfig()), event.JSONSerializer{}, sender, outbox)

		rt.Router = router
		rt.Multicaster.Subscribe(event.Listener{
			Target:    routerTarget(),
			Async:     true,
			Predicate: router.Supports,
			Fn:        router.ListenerFunc,
		})
	}

	var distLock event.DistributedLock
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		distLock = lock.NewRedisLock(client)
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	}

	rt.Supervisor = event.NewSupervisor(event.SupervisorConfig{
		StalenessMonitorEnabled: cfg.Staleness.Monitor,
		CheckInterval:           cfg.Staleness.CheckInterval,
		StalenessThreshold:      cfg.Staleness.Threshold,
		RepublishOnRestart:      cfg.Republish.OnRestart,
		LockTimeout:             cfg.Republish.LockTimeout,
	}, registry, republisher, distLock)

	if err := rt.Supervisor.Start(ctx); err != nil {
		return nil, fmt.Errorf("modulith: start supervisor: %w", err)
	}

	logging.Infof(ctx, "modulith: runtime started (store=%s externalization=%v)", cfg.Store.Driver, cfg.Externalization.Enabled)
	return rt, nil
}

// routerTarget names the Router's own listener slot for publication
// bookkeeping purposes.
func routerTarget() event.PublicationTargetIdentifier {
	t, err := event.NewPublicationTargetIdentifier("modulith.event.Router")
	if err != nil {
		panic(err)
	}
	return t
}

// buildSender constructs the broker Sender configured by cfg.Broker,
// returning an optional cleanup closure.
func buildSender(cfg *config.Config) (event.Sender, func(context.Context) error, error) {
	composite := broker.NewCompositeSender()

	switch cfg.Broker.Driver {
	case "rabbitmq":
		conn, err := amqp.Dial(cfg.Broker.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("modulith: dial rabbitmq: %w", err)
		}
		composite.Register(broker.SchemeAMQP, brokerrabbitmq.NewSender(conn, 30*time.Second))
		return composite, func(context.Context) error { return conn.Close() }, nil
	case "kafka":
		sender := brokerkafka.NewSender(strings.Split(cfg.Broker.DSN, ","))
		composite.Register(broker.SchemeKafka, sender)
		return composite, func(context.Context) error { return sender.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("modulith: unknown broker driver %q", cfg.Broker.Driver)
	}
}

// Shutdown runs the Registry's shutdown diagnostic, stops the Supervisor,
// then runs the remaining cleanups in reverse order of acquisition: the
// lock's Redis client, the broker connection, and the worker pool last.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.Registry.Shutdown(ctx)

	if err := rt.Supervisor.Stop(ctx); err != nil {
		logging.Errorf(ctx, "modulith: supervisor stop: %v", err)
	}

	var firstErr error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
