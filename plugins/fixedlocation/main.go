package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"

	"punchclock/internal/modules/location/adapter/out/rpc"
)

type settings struct {
	Permission string        `env:"PERMISSION" envDefault:"granted"`
	Answer     string        `env:"ANSWER" envDefault:"granted"`
	Latitude   float64       `env:"LATITUDE" envDefault:"24.8607"`
	Longitude  float64       `env:"LONGITUDE" envDefault:"67.0011"`
	Accuracy   float64       `env:"ACCURACY" envDefault:"25"`
	Delay      time.Duration `env:"DELAY" envDefault:"0s"`
}

type server struct {
	cfg settings

	mu       sync.Mutex
	decision string
}

func (s *server) CheckPermission(context.Context, *rpc.Empty) (*rpc.PermissionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &rpc.PermissionResponse{Permission: s.decision}, nil
}

// RequestPermission settles an undetermined permission to the configured
// answer, like a user tapping the system dialog.
func (s *server) RequestPermission(context.Context, *rpc.Empty) (*rpc.PermissionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision == "undetermined" {
		s.decision = s.cfg.Answer
	}
	return &rpc.PermissionResponse{Permission: s.decision}, nil
}

func (s *server) CurrentPosition(ctx context.Context, _ *rpc.PositionRequest) (*rpc.PositionResponse, error) {
	if s.cfg.Delay > 0 {
		select {
		case <-time.After(s.cfg.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &rpc.PositionResponse{
		Latitude:       s.cfg.Latitude,
		Longitude:      s.cfg.Longitude,
		AccuracyMeters: s.cfg.Accuracy,
		CapturedAtUnix: time.Now().UnixMilli(),
	}, nil
}

func main() {
	cfg := settings{}
	if err := env.Parse(&cfg, env.Options{Prefix: "FIXEDLOCATION_"}); err != nil {
		fmt.Fprintf(os.Stderr, "fixedlocation: %v\n", err)
		os.Exit(1)
	}
	rpc.Serve(&server{cfg: cfg, decision: cfg.Permission})
}
