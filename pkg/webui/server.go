// Package webui provides the status HTTP server: health probe, pipeline
// stats, and the loaded command set. It is a local, unauthenticated
// surface meant for supervision, not control.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"go.uber.org/zap"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/logger"
	"wabot/pkg/version"
	"wabot/pkg/whatsapp"
)

// Server is the status HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	log        *logger.Logger
	registry   *commands.Registry
	runtime    commands.Runtime
	client     whatsapp.Client
	startedAt  time.Time
}

// NewServer creates the status server.
func NewServer(cfg *config.Config, log *logger.Logger, registry *commands.Registry, rt commands.Runtime, client whatsapp.Client) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		runtime:   rt,
		client:    client,
		startedAt: time.Now(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS("*"))

	e.GET("/health", s.handleHealth)
	e.GET("/api/status", s.handleStatus)
	e.GET("/api/stats", s.handleStats)
	e.GET("/api/commands", s.handleCommands)

	s.echo = e
}

// Start begins serving. It returns once the listener is up; serve
// errors land in the log.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.WebUI.Host, s.cfg.WebUI.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Info("Status server listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c *echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startedAt)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":            version.Version,
		"commit":             version.GitCommit,
		"build_time":         version.BuildTime,
		"go_version":         runtime.Version(),
		"os":                 runtime.GOOS,
		"arch":               runtime.GOARCH,
		"uptime":             uptime.Round(time.Second).String(),
		"uptime_seconds":     int64(uptime.Seconds()),
		"memory_alloc_bytes": mem.Alloc,
		"bot_jid":            s.client.BotJID(),
		"bot_name":           s.client.BotName(),
		"command_count":      s.registry.Count(),
	})
}

func (s *Server) handleStats(c *echo.Context) error {
	counters := s.runtime.Counters()

	usage := s.runtime.Usage()
	perCommand := make(map[string]map[string]int64, len(usage))
	for name, u := range usage {
		perCommand[name] = map[string]int64{
			"count":         u.Count,
			"errors":        u.Errors,
			"total_time_ms": u.TotalTime.Milliseconds(),
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages_seen":    counters.MessagesSeen,
		"commands_run":     counters.CommandsRun,
		"command_errors":   counters.CommandErrors,
		"gate_denials":     counters.GateDenials,
		"unknown_commands": counters.Unknown,
		"avg_response_ms":  counters.AverageTime().Milliseconds(),
		"commands":         perCommand,
		"uptime_seconds":   int64(s.runtime.Uptime().Seconds()),
	})
}

type commandInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Usage       string   `json:"usage"`
	OwnerOnly   bool     `json:"owner_only,omitempty"`
	AdminOnly   bool     `json:"admin_only,omitempty"`
	GroupOnly   bool     `json:"group_only,omitempty"`
}

func (s *Server) handleCommands(c *echo.Context) error {
	visible := s.registry.Visible()
	out := make([]commandInfo, 0, len(visible))
	for _, d := range visible {
		out = append(out, commandInfo{
			Name:        d.Name,
			Aliases:     d.Aliases,
			Category:    d.Category,
			Description: d.Description,
			Usage:       d.UsageLine(s.cfg.Bot.Prefix),
			OwnerOnly:   d.OwnerOnly,
			AdminOnly:   d.AdminOnly,
			GroupOnly:   d.GroupOnly,
		})
	}
	return c.JSON(http.StatusOK, out)
}
