package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/laminarci/laminar/internal/engine"
	"github.com/laminarci/laminar/internal/logger"
	"github.com/laminarci/laminar/internal/store"
	"github.com/spf13/viper"
)

// setup wires the viper-resolved server configuration into the concrete
// dependencies (store, logger, engine) that "laminar run" starts.
type setup struct {
	home         string
	listen       string
	gracePeriod  time.Duration
	pollInterval time.Duration
	server       string
}

func newSetup() *setup {
	home := viper.GetString("home")
	if home == "" {
		home = "/var/lib/laminar"
	}
	return &setup{
		home:         home,
		listen:       viper.GetString("listen"),
		gracePeriod:  viper.GetDuration("grace-period"),
		pollInterval: viper.GetDuration("poll-interval"),
		server:       viper.GetString("server"),
	}
}

func (s *setup) logger() logger.Logger {
	var opts []logger.Option
	if viper.GetBool("debug") {
		opts = append(opts, logger.WithDebug())
	}
	if format := viper.GetString("log-format"); format != "" {
		opts = append(opts, logger.WithFormat(format))
	}
	return logger.NewLogger(opts...)
}

func (s *setup) openStore() (store.Store, error) {
	dir := filepath.Join(s.home, "var")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, "laminar.db")
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return st, nil
}

func (s *setup) engine(st store.Store, log logger.Logger) (*engine.Engine, error) {
	return engine.New(engine.Options{
		Home:         s.home,
		Store:        st,
		Log:          log,
		GracePeriod:  s.gracePeriod,
		PollInterval: s.pollInterval,
		WatchConfig:  true,
		Version:      version,
	})
}
