package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"punchclock/internal/bootstrap"
	"punchclock/internal/devserver"
	"punchclock/internal/modules/attendance/domain"
	attendancedto "punchclock/internal/modules/attendance/dto"
	"punchclock/internal/platform/config"
	"punchclock/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	employeeID string
	token      string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "punchclock",
		Short:         "Attendance check-in and check-out from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <data dir>/config.yaml)")
	root.PersistentFlags().StringVar(&flags.employeeID, "employee-id", "", "employee id (overrides config)")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "access token (overrides PUNCHCLOCK_TOKEN)")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "print state as JSON")

	root.AddCommand(newStatusCmd(flags))
	root.AddCommand(newCheckInCmd(flags))
	root.AddCommand(newCheckOutCmd(flags))
	root.AddCommand(newWatchCmd(flags))
	root.AddCommand(newLogoutCmd(flags))
	root.AddCommand(newDevServerCmd(flags))
	return root
}

type session struct {
	app        *bootstrap.App
	employeeID string
	token      string
	cleanup    func()
}

func (s *session) Close() {
	s.app.Close()
	s.cleanup()
}

func openSession(flags *globalFlags, interactive bool) (*session, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	log, cleanup, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	opts := bootstrap.Options{Logger: log}
	if interactive && bootstrap.Interactive() {
		opts.PromptIn = os.Stdin
		opts.PromptOut = os.Stderr
	}
	app, err := bootstrap.New(cfg, opts)
	if err != nil {
		cleanup()
		return nil, err
	}
	s := &session{app: app, employeeID: cfg.EmployeeID, token: cfg.AccessToken, cleanup: cleanup}
	if flags.employeeID != "" {
		s.employeeID = flags.employeeID
	}
	if flags.token != "" {
		s.token = flags.token
	}
	return s, nil
}

func (s *session) initialize(ctx context.Context) (attendancedto.StateOutput, error) {
	return s.app.AttendanceCLI.Initialize(ctx, s.employeeID, s.token)
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current attendance session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.Close()
			state, err := s.initialize(cmd.Context())
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), state, s.app.DisplayZone, flags.jsonOut)
		},
	}
}

func newCheckInCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin",
		Short: "Check in with the current location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, true)
			if err != nil {
				return err
			}
			defer s.Close()
			if _, err := s.initialize(cmd.Context()); err != nil {
				return err
			}
			state, err := s.app.AttendanceCLI.CheckIn(cmd.Context())
			if printErr := printState(cmd.OutOrStdout(), state, s.app.DisplayZone, flags.jsonOut); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func newCheckOutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Check out of the open session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.Close()
			if _, err := s.initialize(cmd.Context()); err != nil {
				return err
			}
			state, err := s.app.AttendanceCLI.CheckOut(cmd.Context())
			if printErr := printState(cmd.OutOrStdout(), state, s.app.DisplayZone, flags.jsonOut); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live session view with check-in and check-out keys",
		Long: "Live session view with check-in and check-out keys.\n\n" +
			"With location.permission set to prompt, the location question is asked\n" +
			"before the view opens; without a terminal it counts as denied.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, true)
			if err != nil {
				return err
			}
			defer s.Close()
			if _, err := s.app.ResolveLocationPermission(cmd.Context()); err != nil {
				return err
			}
			return bootstrap.RunTUI(s.app, s.employeeID, s.token)
		},
	}
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the cached session of this installation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.app.AttendanceCLI.Logout(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newDevServerCmd(flags *globalFlags) *cobra.Command {
	var addr string
	var tokens []string
	var omitRejectTimestamp bool

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Serve an in-memory attendance API for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			log, cleanup, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer cleanup()
			zone, err := time.LoadLocation(cfg.Remote.Timezone)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: addr,
				Handler: devserver.New(devserver.Options{
					Tokens:              tokens,
					Location:            zone,
					Logger:              log,
					OmitRejectTimestamp: omitRejectTimestamp,
				}).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info("devserver listening", zap.String("addr", addr), zap.String("timezone", zone.String()))

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8088", "listen address")
	cmd.Flags().StringSliceVar(&tokens, "token", nil, "accepted bearer tokens (any when empty)")
	cmd.Flags().BoolVar(&omitRejectTimestamp, "omit-reject-timestamp", false, "answer duplicate check-ins without clock_in_time")
	return cmd
}

type stateJSON struct {
	Status         string `json:"status"`
	ClockInAt      string `json:"clock_in_at,omitempty"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Phase          string `json:"phase"`
	Reason         string `json:"reason,omitempty"`
}

func printState(w io.Writer, state attendancedto.StateOutput, zone *time.Location, asJSON bool) error {
	if asJSON {
		out := stateJSON{
			Status:         state.Status,
			ElapsedSeconds: int64(state.Elapsed / time.Second),
			Phase:          state.Phase,
			Reason:         state.Reason,
		}
		if state.CheckedIn {
			out.ClockInAt = state.ClockInAt.In(zone).Format(time.RFC3339)
		}
		return json.NewEncoder(w).Encode(out)
	}
	if state.CheckedIn {
		_, _ = fmt.Fprintf(w, "checked in since %s (%s elapsed)\n",
			state.ClockInAt.In(zone).Format("2006-01-02 15:04:05 MST"), domain.FormatElapsed(state.Elapsed))
	} else {
		_, _ = fmt.Fprintln(w, "checked out")
	}
	if state.Reason != "" {
		_, _ = fmt.Fprintf(w, "note: %s\n", state.Reason)
	}
	return nil
}
