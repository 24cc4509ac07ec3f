// main.go — a CLI demonstrating the attribute stream broker: it
// subscribes to a registered demo PIP through the broker and prints
// each emission until interrupted or a fixed count is reached.
//
// Grounded on the teacher's cmd/gasoline-cmd's urfave/cli wiring
// (single-command App with flags feeding a config.FlagOverrides) and
// its output package's formatter trio, adapted from MCP tool results
// to attribute stream emissions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
	"github.com/heutelbeck/attribute-stream-broker/internal/auditlog"
	"github.com/heutelbeck/attribute-stream-broker/internal/broker"
	"github.com/heutelbeck/attribute-stream-broker/internal/config"
	"github.com/heutelbeck/attribute-stream-broker/internal/invocation"
	"github.com/heutelbeck/attribute-stream-broker/internal/obslog"
	"github.com/heutelbeck/attribute-stream-broker/internal/output"
	"github.com/heutelbeck/attribute-stream-broker/internal/pip"
)

func main() {
	app := cli.NewApp()
	app.Name = "attrbroker-demo"
	app.Usage = "subscribe to a demo attribute through the attribute stream broker"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "attribute, a", Value: "demo.counter", Usage: "registered demo attribute name (demo.counter, demo.clock)"},
		cli.BoolFlag{Name: "fresh", Usage: "bypass cache reuse (fresh-mode subscription)"},
		cli.IntFlag{Name: "timeout-ms", Usage: "initial timeout in ms (0 uses configured default)"},
		cli.IntFlag{Name: "grace-ms", Usage: "grace period override in ms (0 uses configured default)"},
		cli.StringFlag{Name: "format, f", Usage: "output format: human, json, csv (default from config)"},
		cli.IntFlag{Name: "count, n", Value: 5, Usage: "number of emissions to print before exiting (0 = unlimited)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	flags := &config.FlagOverrides{}
	if ms := c.Int("grace-ms"); ms > 0 {
		flags.DefaultGracePeriodMS = &ms
	}
	if ms := c.Int("timeout-ms"); ms > 0 {
		flags.DefaultInitialTimeoutMS = &ms
	}
	if f := c.String("format"); f != "" {
		flags.Format = &f
	}

	cfg, err := config.Load(wd, flags)
	if err != nil {
		return err
	}

	formatter := output.ForName(cfg.Format)
	if formatter == nil {
		return fmt.Errorf("unknown format %q", cfg.Format)
	}

	attribute := c.String("attribute")
	inv, err := invocation.New(invocation.Params{
		Name:      attribute,
		Arguments: []attrvalue.Value{},
		Variables: map[string]attrvalue.Value{},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		cancel()
	}()

	sessionID := uuid.NewString()
	log := obslog.For("demo")
	log.WithField("session", sessionID).WithField("attribute", attribute).Info("subscribing")

	audit := auditlog.New(cfg.AuditCapacity)
	b := broker.New(demoRegistry(), broker.WithGracePeriod(cfg.GracePeriod()), broker.WithAuditLog(audit))

	handle, err := b.AttributeStream(ctx, inv, c.Bool("fresh"), cfg.InitialTimeout(), timeoutSentinel, emptySentinel)
	if err != nil {
		return err
	}
	defer handle.Close()

	limit := c.Int("count")
	seq := 0
	for item := range handle.Values() {
		seq++
		if err := formatter.Format(os.Stdout, toEmission(attribute, seq, item)); err != nil {
			return err
		}
		if limit > 0 && seq >= limit {
			break
		}
	}

	return nil
}

func timeoutSentinel() pip.Item { return pip.Item{Value: attrvalue.Error("time out")} }
func emptySentinel() pip.Item   { return pip.Item{Value: attrvalue.Error("empty")} }

func toEmission(attribute string, seq int, item pip.Item) *output.Emission {
	if item.Err != nil {
		return &output.Emission{Sequence: seq, Attribute: attribute, Error: item.Err.Error()}
	}
	if msg, ok := item.Value.AsError(); ok {
		return &output.Emission{Sequence: seq, Attribute: attribute, Kind: "error", Error: msg}
	}
	return &output.Emission{
		Sequence:  seq,
		Attribute: attribute,
		Kind:      item.Value.Kind().String(),
		Value:     item.Value.String(),
	}
}

// demoRegistry registers the two attributes the demo CLI can
// subscribe to: an integer counter and the wall clock, both standing
// in for a real PIP's annotation-driven discovery (out of scope per
// spec.md §1).
func demoRegistry() *pip.InMemoryRegistry {
	r := pip.NewInMemoryRegistry()

	r.Register("demo.counter", func(inv *invocation.Invocation) (pip.Upstream, error) {
		values := make([]attrvalue.Value, 0, 100)
		for i := int64(0); i < 100; i++ {
			values = append(values, attrvalue.NumberFromInt(i))
		}
		return pip.StaticPIP{Values: values, Interval: time.Second}, nil
	})

	r.Register("demo.clock", func(inv *invocation.Invocation) (pip.Upstream, error) {
		return pip.TickerPIP{Interval: time.Second}, nil
	})

	return r
}
