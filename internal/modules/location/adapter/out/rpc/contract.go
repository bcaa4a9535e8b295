package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey            = "location"
	serviceName             = "punchclock.location.v1.LocationProvider"
	jsonCodecName           = "json"
	methodCheckPermission   = "/" + serviceName + "/CheckPermission"
	methodRequestPermission = "/" + serviceName + "/RequestPermission"
	methodCurrentPosition   = "/" + serviceName + "/CurrentPosition"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PUNCHCLOCK_LOCATION_PLUGIN",
	MagicCookieValue: "punchclock",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type PermissionResponse struct {
	Permission string `json:"permission"`
}

type PositionRequest struct {
	TimeoutMS int64 `json:"timeout_ms"`
}

type PositionResponse struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	CapturedAtUnix int64   `json:"captured_at_unix_ms"`
}

type LocationProviderServer interface {
	CheckPermission(ctx context.Context, in *Empty) (*PermissionResponse, error)
	RequestPermission(ctx context.Context, in *Empty) (*PermissionResponse, error)
	CurrentPosition(ctx context.Context, in *PositionRequest) (*PositionResponse, error)
}

type LocationProviderClient interface {
	CheckPermission(ctx context.Context) (*PermissionResponse, error)
	RequestPermission(ctx context.Context) (*PermissionResponse, error)
	CurrentPosition(ctx context.Context, in *PositionRequest) (*PositionResponse, error)
}

type locationProviderClient struct {
	conn *grpc.ClientConn
}

func NewLocationProviderClient(conn *grpc.ClientConn) LocationProviderClient {
	return &locationProviderClient{conn: conn}
}

func (c *locationProviderClient) CheckPermission(ctx context.Context) (*PermissionResponse, error) {
	out := &PermissionResponse{}
	if err := c.conn.Invoke(ctx, methodCheckPermission, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *locationProviderClient) RequestPermission(ctx context.Context) (*PermissionResponse, error) {
	out := &PermissionResponse{}
	if err := c.conn.Invoke(ctx, methodRequestPermission, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *locationProviderClient) CurrentPosition(ctx context.Context, in *PositionRequest) (*PositionResponse, error) {
	out := &PositionResponse{}
	if err := c.conn.Invoke(ctx, methodCurrentPosition, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func permissionHandler(method string, call func(LocationProviderServer, context.Context, *Empty) (*PermissionResponse, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		impl := srv.(LocationProviderServer)
		in := &Empty{}
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			empty, ok := req.(*Empty)
			if !ok {
				return nil, fmt.Errorf("invalid request type")
			}
			return call(impl, ctx, empty)
		}
		return interceptor(ctx, in, info, handler)
	}
}

func RegisterLocationProviderServer(server grpc.ServiceRegistrar, impl LocationProviderServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*LocationProviderServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "CheckPermission",
				Handler: permissionHandler(methodCheckPermission, func(s LocationProviderServer, ctx context.Context, in *Empty) (*PermissionResponse, error) {
					return s.CheckPermission(ctx, in)
				}),
			},
			{
				MethodName: "RequestPermission",
				Handler: permissionHandler(methodRequestPermission, func(s LocationProviderServer, ctx context.Context, in *Empty) (*PermissionResponse, error) {
					return s.RequestPermission(ctx, in)
				}),
			},
			{
				MethodName: "CurrentPosition",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					impl := srv.(LocationProviderServer)
					in := &PositionRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.CurrentPosition(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCurrentPosition}
					handler := func(ctx context.Context, req any) (any, error) {
						inReq, ok := req.(*PositionRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.CurrentPosition(ctx, inReq)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "location-provider-v1",
	}, impl)
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl LocationProviderServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterLocationProviderServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewLocationProviderClient(conn), nil
}

func PluginMap(impl LocationProviderServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}

// Serve runs a location provider plugin until the host disconnects.
func Serve(impl LocationProviderServer) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap(impl),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
