package out

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"punchclock/internal/modules/location/adapter/out/rpc"
	"punchclock/internal/modules/location/domain"
	apperrors "punchclock/internal/platform/errors"
)

const defaultStartTimeout = 3 * time.Second

// PluginProvider talks to an external location-provider binary. The plugin
// process is started on first use and kept until Close.
type PluginProvider struct {
	binary string
	logger hclog.Logger

	mu     sync.Mutex
	client *plugin.Client
	rpc    rpc.LocationProviderClient
}

func NewPluginProvider(binary string, logger hclog.Logger) *PluginProvider {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel})
	}
	return &PluginProvider{binary: binary, logger: logger}
}

func (p *PluginProvider) Check(ctx context.Context) (domain.Permission, error) {
	client, err := p.connect()
	if err != nil {
		return domain.PermissionUndetermined, err
	}
	resp, err := client.CheckPermission(ctx)
	if err != nil {
		return domain.PermissionUndetermined, fmt.Errorf("check permission: %w", err)
	}
	return domain.ParsePermission(resp.Permission)
}

func (p *PluginProvider) Request(ctx context.Context) (domain.Permission, error) {
	client, err := p.connect()
	if err != nil {
		return domain.PermissionDenied, err
	}
	resp, err := client.RequestPermission(ctx)
	if err != nil {
		return domain.PermissionDenied, fmt.Errorf("request permission: %w", err)
	}
	return domain.ParsePermission(resp.Permission)
}

func (p *PluginProvider) CurrentPosition(ctx context.Context) (domain.Reading, error) {
	client, err := p.connect()
	if err != nil {
		return domain.Reading{}, fmt.Errorf("%w: %v", apperrors.ErrLocationUnavailable, err)
	}
	req := &rpc.PositionRequest{}
	if deadline, ok := ctx.Deadline(); ok {
		req.TimeoutMS = time.Until(deadline).Milliseconds()
	}
	resp, err := client.CurrentPosition(ctx, req)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("current position: %w", err)
	}
	return domain.Reading{
		Latitude:   resp.Latitude,
		Longitude:  resp.Longitude,
		Accuracy:   resp.AccuracyMeters,
		CapturedAt: time.UnixMilli(resp.CapturedAtUnix).UTC(),
	}, nil
}

func (p *PluginProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Kill()
		p.client = nil
		p.rpc = nil
	}
}

func (p *PluginProvider) connect() (rpc.LocationProviderClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && !p.client.Exited() {
		return p.rpc, nil
	}
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  rpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          rpc.PluginMap(nil),
		Cmd:              exec.Command(p.binary),
		Managed:          true,
		StartTimeout:     defaultStartTimeout,
		Logger:           p.logger,
	})
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start location plugin: %w", err)
	}
	raw, err := rpcClient.Dispense(rpc.PluginMapKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense location plugin: %w", err)
	}
	typed, ok := raw.(rpc.LocationProviderClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("location plugin client type mismatch")
	}
	p.client = client
	p.rpc = typed
	return typed, nil
}
