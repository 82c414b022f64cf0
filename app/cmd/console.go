package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"feederconsole/app/internal/aggstatus"
	"feederconsole/app/internal/checker"
	"feederconsole/app/internal/config"
	"feederconsole/app/internal/docker"
	"feederconsole/app/internal/envstore"
	"feederconsole/app/internal/logging"
	"feederconsole/app/internal/registry"
	"feederconsole/app/internal/selector"
	"feederconsole/app/internal/shell"
	"feederconsole/app/internal/tailnet"
)

// newRunner is swapped out by tests.
var newRunner = func() shell.Runner { return shell.Exec{} }

// console is the set of components every command shares.
type console struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *envstore.Store
	registry *registry.Registry
	docker   *docker.Client
	selector *selector.Selector
	manager  *aggstatus.Manager
}

func newConsole() (*console, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if envFile != "" {
		cfg.EnvFile = envFile
	}
	if aggregatorsFile != "" {
		cfg.AggregatorsFile = aggregatorsFile
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := envstore.Open(cfg.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.EnvFile, err)
	}
	reg, err := registry.Load(cfg.AggregatorsFile)
	if err != nil {
		return nil, err
	}

	runner := newRunner()
	dc := docker.NewClient(runner, cfg.DockerCacheTTL, cfg.CommandTimeout, log.Named("docker"))
	sel := selector.New(
		checker.NewTCPChecker(cfg.ProbeTimeout, log.Named("checker")),
		tailnet.NewProbe(runner, cfg.CommandTimeout, log.Named("tailnet")),
		log.Named("selector"),
	)
	mgr := aggstatus.NewManager(reg, store, dc, aggstatus.Options{
		RunDir:     cfg.RunDir,
		TTL:        cfg.StatusTTL,
		StaleAfter: cfg.MlatStaleAfter,
		Log:        log.Named("aggstatus"),
	})

	return &console{
		cfg:      cfg,
		log:      log,
		store:    store,
		registry: reg,
		docker:   dc,
		selector: sel,
		manager:  mgr,
	}, nil
}

// prepareStore fills required relay defaults and rewrites superseded relay
// addresses.
func (c *console) prepareStore() error {
	filled, err := selector.EnsureDefaults(c.store)
	if err != nil {
		return fmt.Errorf("write relay defaults: %w", err)
	}
	if len(filled) > 0 {
		c.log.Info("filled missing relay settings", zap.Strings("keys", filled))
	}
	migrated, err := selector.MigrateLegacy(c.store, c.registry.LegacyAddresses)
	if err != nil {
		return fmt.Errorf("migrate relay addresses: %w", err)
	}
	if len(migrated) > 0 {
		c.log.Info("migrated legacy relay addresses", zap.Strings("keys", migrated))
	}
	return nil
}

func (c *console) close() {
	_ = c.log.Sync()
}
