package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"

	"github.com/hlebuschek/printer-inventory-django-sub001/common/config"
)

const serviceName = "PrinterInventory"

// program implements service.Interface
type program struct {
	configPath string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("Printer inventory service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)

	cfg, err := loadRuntimeConfig(p.configPath, true)
	if err == nil {
		err = runServer(p.ctx, cfg, true)
	}
	if err != nil {
		logError("Service run failed", "error", err)
		if p.svcLogger != nil {
			p.svcLogger.Error(err)
		}
	}
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("Printer inventory service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}

	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("Printer inventory service stopped gracefully")
		}
	case <-time.After(30 * time.Second):
		if p.svcLogger != nil {
			p.svcLogger.Warning("Printer inventory service stopped with timeout")
		}
	}
	return nil
}

// serviceConfigPath is where the installed service reads its configuration.
func serviceConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), config.AppName, "config.toml")
	default:
		return "/etc/printer-inventory/config.toml"
	}
}

// getServiceConfig returns the service configuration for the current platform
func getServiceConfig(configPath string) *service.Config {
	workingDir, err := config.GetDataDirectory(true)
	if err != nil {
		workingDir = ""
	}

	return &service.Config{
		Name:             serviceName,
		DisplayName:      "Printer Inventory",
		Description:      "Polls network printers through the GLPI agent and records validated page counters.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"service", "run", "--config", configPath},
		Option: service.KeyValue{
			// Windows
			"StartType":              "automatic",
			"DelayedAutoStart":       true,
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"OnFailureResetPeriod":   30,

			// systemd
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",

			// launchd
			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}

// setupServiceDirectories creates the data and log directories and writes a
// default configuration when none exists.
func setupServiceDirectories(configPath string) error {
	if _, err := config.GetDataDirectory(true); err != nil {
		return err
	}
	if _, err := config.GetLogDirectory(true); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to generate default config at %s: %w", configPath, err)
		}
		fmt.Printf("Generated default configuration at: %s\n", configPath)
	} else {
		fmt.Printf("Configuration already exists at: %s\n", configPath)
	}
	return nil
}

// handleServiceCommand runs one of install, uninstall, start, stop, run.
func handleServiceCommand(action, configPath string) error {
	if configPath == "" {
		configPath = serviceConfigPath()
	}
	prg := &program{configPath: configPath}
	s, err := service.New(prg, getServiceConfig(configPath))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	switch action {
	case "install":
		if status, _ := s.Status(); status != service.StatusUnknown {
			if status == service.StatusRunning {
				_ = s.Stop()
				time.Sleep(2 * time.Second)
			}
			if err := s.Uninstall(); err != nil {
				return fmt.Errorf("failed to remove existing service: %w", err)
			}
		}
		if err := setupServiceDirectories(configPath); err != nil {
			return err
		}
		if err := s.Install(); err != nil {
			return fmt.Errorf("failed to install service: %w", err)
		}
		fmt.Println("Service installed")
	case "uninstall":
		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("failed to uninstall service: %w", err)
		}
		fmt.Println("Service uninstalled")
	case "start":
		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to start service: %w", err)
		}
		fmt.Println("Service started")
	case "stop":
		if err := s.Stop(); err != nil {
			return fmt.Errorf("failed to stop service: %w", err)
		}
		fmt.Println("Service stopped")
	case "run":
		return s.Run()
	default:
		return fmt.Errorf("unknown service action %q (install, uninstall, start, stop, run)", action)
	}
	return nil
}
