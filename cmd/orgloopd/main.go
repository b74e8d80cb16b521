// Command orgloopd wires an Engine together from a YAML config file and
// runs it until interrupted. It is a demonstration of supervisor wiring,
// not the config/validate/apply CLI described in spec.md §1 (that surface
// is explicitly out of scope for this module).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/orgloop/engine/internal/connector"
	"github.com/orgloop/engine/internal/dynval"
	"github.com/orgloop/engine/internal/engine"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/wal"
)

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

// fileConfig is the on-disk shape of the engine config document (spec.md
// §6). ${VAR} references are resolved against the process environment
// before YAML decode.
type fileConfig struct {
	DataDir    string             `yaml:"data_dir"`
	ListenAddr string             `yaml:"listen_addr"`
	Sources    []model.SourceSpec `yaml:"sources"`
	Actors     []model.ActorSpec  `yaml:"actors"`
	Loggers    []model.LoggerSpec `yaml:"loggers"`
	Routes     []model.RouteSpec  `yaml:"routes"`
}

func loadConfig(path string) (engine.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return engine.Config{}, fmt.Errorf("orgloopd: read config: %w", err)
	}
	substituted, err := dynval.SubstituteEnv(string(raw))
	if err != nil {
		return engine.Config{}, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(substituted), &fc); err != nil {
		return engine.Config{}, fmt.Errorf("orgloopd: parse config: %w", err)
	}
	return engine.Config{
		DataDir:    fc.DataDir,
		ListenAddr: fc.ListenAddr,
		Fsync:      wal.PerRecordSync(),
		Sources:    fc.Sources,
		Actors:     fc.Actors,
		Loggers:    fc.Loggers,
		Routes:     fc.Routes,
	}, nil
}

// buildRegistry registers the demonstration connectors in connectors.go.
// A real deployment registers its own platform-specific Source/Actor/Logger
// implementations the same way; the engine core never imports them.
func buildRegistry() *engine.Registry {
	reg := engine.NewRegistry()
	reg.RegisterSource("clock", func() connector.Source { return &clockSource{} })
	reg.RegisterActor("stdout", func() connector.Actor { return &stdoutActor{} })
	reg.RegisterLogger("stdout", func() connector.Logger { return &stdoutLogger{} })
	return reg
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: orgloopd <config.yaml>")
		os.Exit(1)
	}

	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := loadConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("orgloopd: failed to load config")
	}

	e := engine.New(cfg, log)
	reg := buildRegistry()

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	if err := e.Start(ctx, reg); err != nil {
		log.WithError(err).Fatal("orgloopd: engine failed to start")
	}
	log.Info("orgloopd: engine started")

	<-ctx.Done()
	log.WithError(context.Cause(ctx)).Info("orgloopd: shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), e.DrainTimeout())
	defer stopCancel()
	if err := e.Stop(stopCtx); err != nil {
		log.WithError(err).Error("orgloopd: engine stop returned an error")
		os.Exit(1)
	}
}
