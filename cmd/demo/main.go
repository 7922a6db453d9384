package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/comalice/statecluster"
	"github.com/comalice/statecluster/definition"
	"github.com/comalice/statecluster/runner"
)

//go:embed traffic.yaml
var trafficLight []byte

func main() {
	defPath := flag.String("def", "", "cluster definition (.yaml or .json); defaults to a built-in traffic light")
	events := flag.String("events", "tick", "comma-separated events injected in round-robin order")
	interval := flag.Duration("interval", 2*time.Second, "delay between generated events")
	cycles := flag.Int("cycles", 12, "stop after this many generated events (0 runs until interrupted)")
	diagram := flag.Bool("diagram", false, "print the DOT diagram and exit")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *defPath, strings.Split(*events, ","), *interval, *cycles, *diagram); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, defPath string, events []string, interval time.Duration, cycles int, diagram bool) error {
	var names []string
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			names = append(names, e)
		}
	}
	if len(names) == 0 {
		return errors.New("no events to generate")
	}

	var (
		def *definition.Cluster
		err error
	)
	if defPath == "" {
		def, err = definition.Parse(trafficLight)
	} else {
		def, err = definition.Load(defPath)
	}
	if err != nil {
		return err
	}

	m, err := def.Build(statecluster.WithLogger(logger))
	if err != nil {
		return err
	}
	if diagram {
		fmt.Print(m.ExtractDiagram())
		return nil
	}

	proc, err := runner.NewCommandProcessor(m, runner.HandlerFunc(func(cmd string) {
		fmt.Printf("command: %s (state %v)\n", cmd, coreStates(m))
	}), runner.WithLogger(logger))
	if err != nil {
		return err
	}

	var generated atomic.Int64
	done := make(chan struct{})
	gen, err := runner.NewEventGeneratorFunc(m, func() (string, bool) {
		n := generated.Add(1)
		if cycles > 0 && n > int64(cycles) {
			return "", false
		}
		e := names[(n-1)%int64(len(names))]
		fmt.Printf("\n--- Cycle %d: %s ---\n", n, e)
		if n == int64(cycles) {
			close(done)
		}
		return e, true
	}, interval, runner.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := proc.Start(); err != nil {
		return err
	}
	defer proc.Stop()
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Stop()
	if err := gen.Start(); err != nil {
		return err
	}

	select {
	case <-done:
		_ = gen.Stop()
		// Let the last event drain before shutting down.
		time.Sleep(100 * time.Millisecond)
		fmt.Printf("Demo complete after %d cycles.\n", cycles)
	case <-ctx.Done():
		fmt.Println("\nShutting down gracefully...")
		_ = gen.Stop()
	}
	fmt.Println("Final states:", m.CurrentState())
	return nil
}

// coreStates reads each core directly so the worker keeps running.
func coreStates(m *statecluster.StateMachine) []string {
	states := make([]string, m.Cores())
	for i := range states {
		states[i] = m.Core(i).State()
	}
	return states
}
