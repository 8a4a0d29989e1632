package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/keyrhythm-core/internal/auth"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/config"
	"github.com/nerrad567/keyrhythm-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/keyrhythm-core/internal/telemetry"
)

type watchConfig struct {
	ConfigPath string
	Action     string
	JSON       bool
}

func parseWatchConfig(args []string, errOut io.Writer) (watchConfig, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var cfg watchConfig
	fs.StringVar(&cfg.ConfigPath, "config", config.Path(), "path to config file")
	fs.StringVar(&cfg.Action, "action", "", "only show register or login attempts")
	fs.BoolVar(&cfg.JSON, "json", false, "print raw event documents")
	if err := fs.Parse(args); err != nil {
		return watchConfig{}, errUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "watch: unexpected arguments")
		return watchConfig{}, errUsage
	}
	switch auth.Action(cfg.Action) {
	case "", auth.ActionRegister, auth.ActionLogin:
	default:
		fmt.Fprintf(errOut, "watch: unknown action %q\n", cfg.Action)
		return watchConfig{}, errUsage
	}
	return cfg, nil
}

// runWatch prints attempt events until ctx is cancelled.
func runWatch(ctx context.Context, cfg watchConfig, out io.Writer) error {
	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if appCfg.MQTT.Broker.Host == "" {
		return fmt.Errorf("mqtt.broker.host is not configured")
	}

	mqttCfg := appCfg.MQTT
	mqttCfg.Broker.ClientID += "-watch"

	client, err := mqtt.Connect(mqttCfg)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer client.Close() //nolint:errcheck // closing on exit

	topic := client.Topics().AllAttempts()
	if cfg.Action != "" {
		topic = client.Topics().Attempt(cfg.Action)
	}

	p := &eventPrinter{out: out, raw: cfg.JSON}
	qos := byte(mqttCfg.QoS) //nolint:gosec // G115: qos validated 0-2
	if err := client.Subscribe(topic, qos, p.handle); err != nil {
		return err
	}
	fmt.Fprintf(out, "watching %s\n", topic)

	<-ctx.Done()
	return nil
}

// eventPrinter writes one line per attempt event. Handlers run on paho's
// goroutines so writes are serialised.
type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer
	raw bool
}

func (p *eventPrinter) handle(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.raw {
		_, err := fmt.Fprintf(p.out, "%s\n", payload)
		return err
	}

	var ev telemetry.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decoding event on %s: %w", topic, err)
	}

	result := "ok  "
	if !ev.OK {
		result = "FAIL"
	}
	line := fmt.Sprintf("%s %s %-8s %-16s %s",
		ev.Timestamp.Local().Format(time.TimeOnly), result, ev.Action, ev.Username, ev.Message)
	if !ev.OK && ev.DeviationIndex >= 0 {
		line += fmt.Sprintf(" (key %d off by %.3fs)", ev.DeviationIndex, ev.MaxDeviation)
	}
	_, err := fmt.Fprintln(p.out, line)
	return err
}
