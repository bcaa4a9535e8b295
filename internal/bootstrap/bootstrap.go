package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	attendanceinadapter "punchclock/internal/modules/attendance/adapter/in"
	attendanceoutadapter "punchclock/internal/modules/attendance/adapter/out"
	attendanceout "punchclock/internal/modules/attendance/port/out"
	attendanceservice "punchclock/internal/modules/attendance/service"
	attendanceusecase "punchclock/internal/modules/attendance/usecase"
	locationoutadapter "punchclock/internal/modules/location/adapter/out"
	locationdomain "punchclock/internal/modules/location/domain"
	locationout "punchclock/internal/modules/location/port/out"
	locationservice "punchclock/internal/modules/location/service"
	locationusecase "punchclock/internal/modules/location/usecase"
	"punchclock/internal/platform/clock"
	"punchclock/internal/platform/config"
	"punchclock/internal/platform/id"
	"punchclock/internal/platform/metrics"
	uiapp "punchclock/internal/ui/app"
)

// Options carries what the process knows beyond the config file.
type Options struct {
	Logger *zap.Logger
	// Prompt is where permission questions are asked; nil means no terminal.
	PromptIn  io.Reader
	PromptOut io.Writer
	Clock     clock.Clock
}

type App struct {
	AttendanceCLI attendanceinadapter.CLIHandler
	Config        config.Config
	DisplayZone   *time.Location

	prompt  *locationoutadapter.PromptPermission
	closers []func()
}

func New(cfg config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	app := &App{Config: cfg}

	displayZone, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("display timezone: %w", err)
	}
	app.DisplayZone = displayZone
	serverZone, err := time.LoadLocation(cfg.Remote.Timezone)
	if err != nil {
		return nil, fmt.Errorf("remote timezone: %w", err)
	}

	cache, err := app.newSnapshotCache(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	remote, err := attendanceoutadapter.NewHTTPRemoteService(attendanceoutadapter.HTTPRemoteOptions{
		BaseURL:  cfg.Remote.BaseURL,
		Timeout:  cfg.Remote.Timeout,
		Location: serverZone,
		IDs:      id.UUID{},
		Logger:   log,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	permissions, positions := app.newLocationSources(cfg, opts, clk, log)
	locationUC := locationusecase.NewInteractor(
		locationservice.NewGateService(permissions, positions, cfg.Location.Timeout),
		log,
	)

	attendanceMetrics, err := metrics.NewAttendance()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("attendance metrics: %w", err)
	}
	engine := attendanceusecase.NewEngine(attendanceusecase.Deps{
		Remote:   remote,
		Cache:    cache,
		Gate:     attendanceoutadapter.NewLocationGateAdapter(locationUC),
		Clock:    clk,
		Ticker:   attendanceservice.NewElapsedTicker(clk, cfg.Session.TickInterval, cfg.Session.MaxDuration),
		Logger:   log,
		Metrics:  attendanceMetrics,
		CacheKey: cfg.Cache.Key,
	})
	app.AttendanceCLI = attendanceinadapter.NewCLIHandler(engine)
	app.closers = append([]func(){engine.Close}, app.closers...)
	return app, nil
}

// Close stops the engine first, then releases the stores it used.
func (a *App) Close() {
	for _, closeFn := range a.closers {
		closeFn()
	}
	a.closers = nil
}

func (a *App) newSnapshotCache(cfg config.Config) (attendanceout.SnapshotCache, error) {
	switch cfg.Cache.Backend {
	case "file":
		return attendanceoutadapter.NewFileSnapshotCache(cfg.DataDir), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = client.Close() })
		return attendanceoutadapter.NewRedisSnapshotCache(client, cfg.Cache.RedisPrefix), nil
	default:
		cache, err := attendanceoutadapter.NewSQLiteSnapshotCache(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("new snapshot cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = cache.Close() })
		return cache, nil
	}
}

func (a *App) newLocationSources(cfg config.Config, opts Options, clk clock.Clock, log *zap.Logger) (locationout.PermissionSource, locationout.PositionSource) {
	var plugin *locationoutadapter.PluginProvider
	if cfg.Location.Provider == "plugin" {
		plugin = locationoutadapter.NewPluginProvider(cfg.Location.PluginPath, hclog.New(&hclog.LoggerOptions{
			Name:   "location-plugin",
			Output: zap.NewStdLog(log.Named("location-plugin")).Writer(),
			Level:  hclog.Warn,
		}))
		a.closers = append(a.closers, plugin.Close)
	}

	var positions locationout.PositionSource
	if plugin != nil {
		positions = plugin
	} else {
		positions = locationoutadapter.NewStaticPosition(cfg.Location.Latitude, cfg.Location.Longitude, clk)
	}

	var permissions locationout.PermissionSource
	switch cfg.Location.Permission {
	case "granted":
		permissions = locationoutadapter.NewStaticPermission(locationdomain.PermissionGranted)
	case "denied":
		permissions = locationoutadapter.NewStaticPermission(locationdomain.PermissionDenied)
	case "provider":
		permissions = plugin
	default:
		a.prompt = locationoutadapter.NewPromptPermission(cfg.DataDir, opts.PromptIn, opts.PromptOut, clk)
		permissions = a.prompt
	}
	return permissions, positions
}

// ResolveLocationPermission settles a pending terminal prompt now, before a
// full-screen view owns the terminal. Other permission sources report
// Undetermined and are asked on check-in as usual.
func (a *App) ResolveLocationPermission(ctx context.Context) (locationdomain.Permission, error) {
	if a.prompt == nil {
		return locationdomain.PermissionUndetermined, nil
	}
	return a.prompt.Request(ctx)
}

// RunTUI blocks until the user quits the watch view.
func RunTUI(app *App, employeeID, token string) error {
	model := uiapp.NewModel(app.AttendanceCLI, employeeID, token, app.DisplayZone)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// Interactive reports whether stdin is a terminal that can answer prompts.
func Interactive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
