package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/switchbot-go/internal/ble"
	"github.com/chaz8081/switchbot-go/internal/bridge"
	"github.com/chaz8081/switchbot-go/internal/config"
	"github.com/chaz8081/switchbot-go/internal/mqtt"
	"github.com/chaz8081/switchbot-go/internal/schedule"
	"github.com/chaz8081/switchbot-go/internal/switchbot"
	"github.com/chaz8081/switchbot-go/internal/telemetry"
)

const usage = `usage: switchbot [-config path] <command>

commands:
  on                       turn a dual-mode bot on
  off                      turn a dual-mode bot off
  press                    press a press-mode bot
  mode press|dual|dual-inverse
                           switch the bot's mode
  settings                 print battery, firmware and mode
  scan                     list nearby SwitchBots
  bridge                   serve the bot over MQTT
  init                     write a default config file
`

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/switchbot-go/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	if command == "init" {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("init: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	adapter := ble.NewSystemAdapter()

	if command == "scan" {
		runScan(adapter)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	bot, err := switchbot.New(adapter, cfg.Device.Address, cfg.Device.Password, switchbot.Options{
		DualMode:   *cfg.Device.DualMode,
		RetryCount: cfg.Device.RetryCount,
	})
	if err != nil {
		log.Fatalf("switchbot: %v", err)
	}

	switch command {
	case "on":
		report(bot.TurnOn())
	case "off":
		report(bot.TurnOff())
	case "press":
		report(bot.Press())
	case "mode":
		dual, inverse, err := parseMode(args)
		if err != nil {
			log.Fatalf("mode: %v", err)
		}
		report(bot.SetMode(dual, inverse))
	case "settings":
		ok, err := bot.GetSettings()
		report(ok, err)
		printSettings(bot)
	case "bridge":
		printBanner(cfg)
		if err := runBridge(cfg, bot); err != nil {
			log.Fatalf("bridge: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// report exits non-zero unless the command succeeded.
func report(ok bool, err error) {
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	if !ok {
		log.Fatal("ERROR: command failed, see log for the device status")
	}
	log.Println("OK")
}

func parseMode(args []string) (dual, inverse bool, err error) {
	if len(args) != 1 {
		return false, false, fmt.Errorf("expected one of press, dual, dual-inverse")
	}
	switch args[0] {
	case "press":
		return false, false, nil
	case "dual":
		return true, false, nil
	case "dual-inverse":
		return true, true, nil
	default:
		return false, false, fmt.Errorf("unknown mode %q", args[0])
	}
}

func runScan(adapter ble.Adapter) {
	log.Printf("Scanning for %s...", ble.DefaultScanTimeout)
	devices, err := ble.ScanForDevices(adapter, ble.DefaultScanTimeout)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	if len(devices) == 0 {
		log.Println("No SwitchBots found")
		return
	}
	for _, d := range devices {
		fmt.Printf("%s  %-12s  %d dBm\n", d.MAC, d.Name, d.RSSI)
	}
}

func printSettings(bot *switchbot.Bot) {
	state, ok := bot.State()
	if !ok {
		return
	}
	fmt.Printf("  Battery:   %d%%\n", state.Battery)
	fmt.Printf("  Firmware:  %s\n", state.Firmware)
	fmt.Printf("  Dual mode: %t\n", state.DualMode)
	fmt.Printf("  Inverse:   %t\n", state.InverseMode)
}

// runBridge serves bot over MQTT until SIGINT or SIGTERM.
func runBridge(cfg *config.Config, bot *switchbot.Bot) error {
	if !cfg.MQTT.Enabled {
		return fmt.Errorf("mqtt.enabled must be true")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deviceID := ble.DeviceID(cfg.Device.Address)
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}

	client, err := mqtt.Connect(cfg.MQTT, topics.Availability(deviceID))
	if err != nil {
		return err
	}
	defer client.Close()

	opts := bridge.Options{Topics: topics, DeviceID: deviceID, QoS: client.QoS()}
	if cfg.InfluxDB.Enabled {
		writer, err := telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			slog.Warn("[BRIDGE] telemetry unavailable, continuing without it", "error", err)
		} else {
			defer writer.Close()
			opts.Sink = writer
		}
	}

	br := bridge.New(client, bot, opts)
	if err := br.Start(); err != nil {
		return err
	}

	if cfg.Poll.Schedule != "" {
		poller := schedule.NewPoller(slog.Default())
		if err := poller.Add("settings", cfg.Poll.Schedule, br.Refresh); err != nil {
			return err
		}
		poller.Start(ctx)
		defer poller.Stop()
	}

	log.Printf("Ready! Listening on %s. Ctrl+C to quit.", topics.Device(deviceID))
	<-ctx.Done()
	log.Println("Shutting down...")
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	log.Println("No config file found, using defaults (run 'switchbot init' to create one)")
	return config.Default(), nil
}

// printBanner displays the bridge configuration summary.
func printBanner(cfg *config.Config) {
	mode := "press"
	if *cfg.Device.DualMode {
		mode = "dual"
	}
	fmt.Println("=== switchbot-go ===")
	fmt.Printf("  Device:  %s (%s mode, %d retries)\n", cfg.Device.Address, mode, cfg.Device.RetryCount)
	fmt.Printf("  MQTT:    %s:%d/%s\n", cfg.MQTT.Host, cfg.MQTT.Port, cfg.MQTT.TopicPrefix)
	if cfg.InfluxDB.Enabled {
		fmt.Printf("  Influx:  %s (%s)\n", cfg.InfluxDB.URL, cfg.InfluxDB.Bucket)
	}
	if cfg.Poll.Schedule != "" {
		fmt.Printf("  Poll:    %s\n", cfg.Poll.Schedule)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("====================")
}
