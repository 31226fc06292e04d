package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/config"
	"github.com/doodlesbykumbi/phivault/pkg/datakey"
	"github.com/doodlesbykumbi/phivault/pkg/db"
	"github.com/doodlesbykumbi/phivault/pkg/eventbus"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/ledger/gormledger"
	"github.com/doodlesbykumbi/phivault/pkg/metrics"
	"github.com/doodlesbykumbi/phivault/pkg/records"
)

// runtime is a contract over the database ledger plus everything that has
// to be closed when the command exits.
type runtime struct {
	Contract *records.Contract
	Backend  *gormledger.Backend
	Metrics  *metrics.Metrics
	closers  []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func loadDataKey(ctx context.Context, cfg *config.PhivaultConfig) ([]byte, error) {
	var source datakey.Source
	switch cfg.DataKeySource {
	case "vault":
		vs, err := datakey.NewVaultSource(cfg.VaultDataKeyPath, "")
		if err != nil {
			return nil, err
		}
		source = vs
	default:
		source = datakey.EnvSource{Var: datakey.EnvVar}
	}
	return source.DataKey(ctx)
}

func loadPolicy(path string) (*access.Policy, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open access policy: %w", err)
	}
	defer func() { _ = f.Close() }()
	return access.LoadPolicy(f)
}

// bootstrap wires a records.Contract from cfg: the data key, the gorm
// ledger backend, the Kafka event publisher and the audit mirrors.
func bootstrap(ctx context.Context, cfg *config.PhivaultConfig, reg prometheus.Registerer) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataKey, err := loadDataKey(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load data key: %w", err)
	}

	gdb, err := db.Connect(db.Config{})
	if err != nil {
		return nil, err
	}

	rt := &runtime{Backend: gormledger.New(gdb)}
	if sqlDB, err := gdb.DB(); err == nil {
		rt.closers = append(rt.closers, sqlDB.Close)
	}

	ledgerOpts := []ledger.Option{ledger.WithDurable(records.DurableTypes()...)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := eventbus.NewKafkaPublisher(eventbus.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, publisher.Close)
		ledgerOpts = append(ledgerOpts, ledger.WithSubscriber(publisher))
	}

	var contractOpts []records.Option
	if cfg.AuditEnabled {
		contractOpts = append(contractOpts, records.WithAuditLogger(audit.NewLogger()))
	}
	store, err := audit.OpenStore(cfg.AuditDatabaseDriver, cfg.AuditDatabaseURL)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	if store != nil {
		rt.closers = append(rt.closers, store.Close)
		contractOpts = append(contractOpts, records.WithAuditStore(store))
	}

	policy, err := loadPolicy(cfg.AccessPolicyPath)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if policy != nil {
		contractOpts = append(contractOpts, records.WithPolicy(policy))
	}

	if reg != nil {
		rt.Metrics = metrics.New(reg)
		contractOpts = append(contractOpts, records.WithMetrics(rt.Metrics))
	}

	rt.Contract, err = records.New(ledger.New(rt.Backend, ledgerOpts...), dataKey, cfg, contractOpts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}
