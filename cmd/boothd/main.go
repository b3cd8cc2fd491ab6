package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kioskworks/boothd/internal/compose"
	"github.com/kioskworks/boothd/internal/config"
	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/device"
	"github.com/kioskworks/boothd/internal/hw/gpio"
	"github.com/kioskworks/boothd/internal/hw/trigger"
	"github.com/kioskworks/boothd/internal/printing"
	"github.com/kioskworks/boothd/internal/session"
	"github.com/kioskworks/boothd/internal/storage"
	"github.com/kioskworks/boothd/internal/template"
	"github.com/kioskworks/boothd/internal/upload"
	"github.com/kioskworks/boothd/internal/web"
)

func main() {
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	addr := flag.String("addr", "", "override web listen address (e.g. :8980)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Summary("boothd starting")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Device type", cfg.Device.Type)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	// Capture device
	dev, err := newDeviceFromConfig(cfg)
	if err != nil {
		log.Fatalf("init capture device failed: %v", err)
	}
	defer dev.Close()

	// Template library
	lib, err := template.LoadDir(cfg.Templates.Dir)
	if err != nil {
		log.Fatalf("load templates failed: %v", err)
	}
	if len(lib.All()) == 0 {
		log.Fatalf("no templates found in %s", cfg.Templates.Dir)
	}

	// Session store
	db, err := storage.InitDB(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("init storage failed: %v", err)
	}
	defer db.Close()

	// Print handoff
	printer, err := printing.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init printer failed: %v", err)
	}

	composer := compose.New(cfg.Device.PhotoDir)

	orch := session.New(cfg, session.Deps{
		Device:    dev,
		Templates: lib,
		Store:     db,
		Composer:  composer,
		Printer:   printer,
		Uploader:  db,
	})

	hub := web.NewHub(orch)

	// GPIO: photographer trigger button and print-ready lamp.
	var lamp *trigger.Lamp
	if cfg.Trigger.Enabled {
		gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			log.Fatalf("init GPIO failed: %v", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()

		button, err := trigger.NewButton(gpioDriver, cfg.Trigger.ButtonPin,
			cfg.TriggerPoll(), cfg.TriggerDebounce(), orch.Trigger)
		if err != nil {
			log.Fatalf("init trigger button failed: %v", err)
		}
		go button.Run(ctx)

		if cfg.Trigger.LampPin > 0 {
			lamp, err = trigger.NewLamp(gpioDriver, cfg.Trigger.LampPin)
			if err != nil {
				log.Fatalf("init lamp failed: %v", err)
			}
		}
	}

	// Every projection change reaches the operators; the lamp mirrors
	// print readiness.
	orch.SetViewListener(func(v session.View) {
		hub.BroadcastView(v)
		if lamp != nil {
			if v.PrintReady {
				lamp.On()
			} else {
				lamp.Off()
			}
		}
	})

	// Mirror the debug log to connected operators.
	debug.SetOutput(io.MultiWriter(os.Stdout, web.LogWriter(hub)))

	go hub.Run(ctx)
	go func() {
		if err := orch.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("orchestrator stopped: %v", err)
		}
	}()

	if cfg.Upload.Enabled {
		worker := upload.NewWorker(db, cfg.Upload.OutboxDir, cfg.UploadInterval())
		go worker.Run(ctx)
	}

	srv := web.NewServer(cfg.Web.Addr, hub, orch, lib, cfg.Device.PhotoDir)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("web server: %v", err)
	}
}

// newDeviceFromConfig selects a capture device implementation based
// on configuration.
func newDeviceFromConfig(cfg *config.Config) (device.Device, error) {
	switch cfg.Device.Type {
	case "sim":
		return device.NewSim(device.SimConfig{
			PhotoDir:    cfg.Device.PhotoDir,
			Latency:     cfg.SimLatency(),
			EventBuffer: cfg.Timing.DeviceEventBuffer,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported device type: %s", cfg.Device.Type)
	}
}
