package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"milltrack/internal/catalog"
	"milltrack/internal/config"
	"milltrack/internal/disposal"
	"milltrack/internal/identity"
	"milltrack/internal/logging"
	"milltrack/internal/notifications"
	"milltrack/internal/processing"
	"milltrack/internal/registry"
	"milltrack/internal/tracker"
	"milltrack/internal/wasteledger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

// appServices bundles the wired core components one command invocation
// uses. The store is open and the single-writer lock held for the
// lifetime of the bundle.
type appServices struct {
	cfg       *config.Config
	store     *processing.Store
	catalog   *catalog.Service
	registry  *registry.Service
	tracker   *tracker.Service
	ledger    *wasteledger.Service
	disposals *disposal.Service
	directory *identity.ConfigDirectory
	notifier  notifications.Service
	logger    *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withServices opens the store under the single-writer lock, builds the
// service graph, runs fn, and tears everything down again.
func (c *commandContext) withServices(fn func(*appServices) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another milltrack process is using %s", filepath.Dir(cfg.LockPath()))
	}
	defer lock.Unlock()

	store, err := processing.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	logger, err := commandLogger(cfg)
	if err != nil {
		return err
	}

	directory := identity.NewConfigDirectory(cfg)
	notifier := notifications.NewService(cfg)

	app := &appServices{
		cfg:       cfg,
		store:     store,
		catalog:   catalog.NewService(store, logger),
		registry:  registry.NewService(store, notifier, logger),
		tracker:   tracker.NewService(store, notifier, cfg.Processing.RequireSplitBalance, logger),
		ledger:    wasteledger.NewService(store, directory, logger),
		disposals: disposal.NewService(store, directory, notifier, logger),
		directory: directory,
		notifier:  notifier,
		logger:    logger,
	}
	return fn(app)
}

// commandLogger writes to the log file only so command output stays clean.
func commandLogger(cfg *config.Config) (*slog.Logger, error) {
	dir := strings.TrimSpace(cfg.Paths.LogDir)
	if dir == "" {
		return logging.NewNop(), nil
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{filepath.Join(dir, "milltrack.log")},
	})
}
