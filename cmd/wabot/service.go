package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/handler"
	"wabot/pkg/logger"
	"wabot/pkg/maintenance"
	"wabot/pkg/state"
	"wabot/pkg/store"
	"wabot/pkg/webui"
	"wabot/pkg/whatsapp"
)

// newApp assembles the full application graph.
func newApp(extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		store.Module,
		state.Module,
		whatsapp.Module,
		commands.Module,
		handler.Module,
		maintenance.Module,
		webui.Module,
	}
	opts = append(opts, extra...)
	return fx.New(opts...)
}

// BotService implements service.Interface for the bot.
type BotService struct {
	app    *fx.App
	logger service.Logger
}

// NewBotService creates a new bot service wrapper.
func NewBotService() *BotService {
	return &BotService{}
}

// Start implements service.Interface.Start.
func (s *BotService) Start(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Starting wabot service")
	}

	// Start in a goroutine to not block the service manager.
	go s.run()

	return nil
}

// Stop implements service.Interface.Stop.
func (s *BotService) Stop(svc service.Service) error {
	if s.logger != nil {
		s.logger.Info("Stopping wabot service")
	}

	if s.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.app.Stop(ctx); err != nil {
			if s.logger != nil {
				s.logger.Errorf("Error stopping service: %v", err)
			}
			return err
		}
	}

	return nil
}

func (s *BotService) run() {
	s.app = newApp(
		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.Info("Bot service started", zap.String("mode", "daemon"))
					return nil
				},
				OnStop: func(ctx context.Context) error {
					log.Info("Bot service stopped")
					return nil
				},
			})
		}),
		fx.NopLogger, // Suppress fx logs when running as service
	)

	s.app.Run()
}

// ServiceConfig returns the service configuration.
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "wabot",
		DisplayName: "Wabot",
		Description: "WhatsApp group assistant bot",
		Arguments:   []string{"run"},
	}
}

func newService() (service.Service, *BotService, error) {
	prg := NewBotService()
	s, err := service.New(prg, ServiceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("creating service: %w", err)
	}
	return s, prg, nil
}

// InstallService registers the bot with the system service manager.
func InstallService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Install(); err != nil {
		return fmt.Errorf("installing service: %w", err)
	}

	fmt.Println("Service installed successfully!")
	fmt.Println("Use 'wabot service start' to start the service")
	return nil
}

// UninstallService removes the bot from the system service manager.
func UninstallService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Uninstall(); err != nil {
		return fmt.Errorf("uninstalling service: %w", err)
	}

	fmt.Println("Service uninstalled successfully!")
	return nil
}

// StartService starts the installed service.
func StartService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}

	fmt.Println("Service started successfully!")
	return nil
}

// StopService stops the running service.
func StopService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Stop(); err != nil {
		return fmt.Errorf("stopping service: %w", err)
	}

	fmt.Println("Service stopped successfully!")
	return nil
}

// RestartService restarts the service.
func RestartService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	if err := s.Restart(); err != nil {
		return fmt.Errorf("restarting service: %w", err)
	}

	fmt.Println("Service restarted successfully!")
	return nil
}

// StatusService prints the service status.
func StatusService() error {
	s, _, err := newService()
	if err != nil {
		return err
	}

	status, err := s.Status()
	if err != nil {
		return fmt.Errorf("getting service status: %w", err)
	}

	statusStr := "Unknown"
	switch status {
	case service.StatusRunning:
		statusStr = "Running"
	case service.StatusStopped:
		statusStr = "Stopped"
	case service.StatusUnknown:
		statusStr = "Unknown"
	}

	fmt.Printf("Service Status: %s\n", statusStr)
	return nil
}

// RunService runs the bot under the service manager.
func RunService() error {
	s, prg, err := newService()
	if err != nil {
		return err
	}

	svcLogger, err := s.Logger(nil)
	if err != nil {
		return fmt.Errorf("creating service logger: %w", err)
	}
	prg.logger = svcLogger

	if err := s.Run(); err != nil {
		svcLogger.Error(err)
		return err
	}

	return nil
}

// runForeground runs the bot attached to the terminal.
func runForeground() {
	app := newApp(
		fx.Invoke(func(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.Info("Bot started",
						zap.String("mode", "foreground"),
						zap.String("bridge", cfg.Bridge.URL),
						zap.String("prefix", cfg.Bot.Prefix))
					log.Info("Press Ctrl+C to stop")
					return nil
				},
			})
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	app.Run()

	<-ctx.Done()
}
