// Package vmm holds the gRPC client/server stubs for mvirt.vmm.v1.VmmService
// (proto/mvirt.proto), shaped the way protoc-gen-go-grpc output looks, but
// hand-written against the JSON wire codec registered in pkg/api/codec.
package vmm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	_ "github.com/MalteJ/mvirt/pkg/api/codec"
	"github.com/MalteJ/mvirt/pkg/api/types"
)

const (
	serviceName = "mvirt.vmm.v1.VmmService"

	methodGetSystemInfo = "/" + serviceName + "/GetSystemInfo"
	methodCreateVm      = "/" + serviceName + "/CreateVm"
	methodGetVm         = "/" + serviceName + "/GetVm"
	methodListVms       = "/" + serviceName + "/ListVms"
	methodDeleteVm      = "/" + serviceName + "/DeleteVm"
	methodStartVm       = "/" + serviceName + "/StartVm"
	methodStopVm        = "/" + serviceName + "/StopVm"
	methodKillVm        = "/" + serviceName + "/KillVm"
	methodConsole       = "/" + serviceName + "/Console"
)

// VmmServiceClient is the client API for VmmService.
type VmmServiceClient interface {
	GetSystemInfo(ctx context.Context, in *types.GetSystemInfoRequest, opts ...grpc.CallOption) (*types.SystemInfo, error)
	CreateVm(ctx context.Context, in *types.CreateVmRequest, opts ...grpc.CallOption) (*types.Vm, error)
	GetVm(ctx context.Context, in *types.GetVmRequest, opts ...grpc.CallOption) (*types.Vm, error)
	ListVms(ctx context.Context, in *types.ListVmsRequest, opts ...grpc.CallOption) (*types.ListVmsResponse, error)
	DeleteVm(ctx context.Context, in *types.DeleteVmRequest, opts ...grpc.CallOption) (*types.DeleteVmResponse, error)
	StartVm(ctx context.Context, in *types.StartVmRequest, opts ...grpc.CallOption) (*types.Vm, error)
	StopVm(ctx context.Context, in *types.StopVmRequest, opts ...grpc.CallOption) (*types.Vm, error)
	KillVm(ctx context.Context, in *types.KillVmRequest, opts ...grpc.CallOption) (*types.Vm, error)
	Console(ctx context.Context, opts ...grpc.CallOption) (VmmService_ConsoleClient, error)
}

type vmmServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewVmmServiceClient returns a VmmServiceClient bound to cc.
func NewVmmServiceClient(cc grpc.ClientConnInterface) VmmServiceClient {
	return &vmmServiceClient{cc: cc}
}

func (c *vmmServiceClient) GetSystemInfo(ctx context.Context, in *types.GetSystemInfoRequest, opts ...grpc.CallOption) (*types.SystemInfo, error) {
	out := new(types.SystemInfo)
	if err := c.cc.Invoke(ctx, methodGetSystemInfo, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) CreateVm(ctx context.Context, in *types.CreateVmRequest, opts ...grpc.CallOption) (*types.Vm, error) {
	out := new(types.Vm)
	if err := c.cc.Invoke(ctx, methodCreateVm, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) GetVm(ctx context.Context, in *types.GetVmRequest, opts ...grpc.CallOption) (*types.Vm, error) {
	out := new(types.Vm)
	if err := c.cc.Invoke(ctx, methodGetVm, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) ListVms(ctx context.Context, in *types.ListVmsRequest, opts ...grpc.CallOption) (*types.ListVmsResponse, error) {
	out := new(types.ListVmsResponse)
	if err := c.cc.Invoke(ctx, methodListVms, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) DeleteVm(ctx context.Context, in *types.DeleteVmRequest, opts ...grpc.CallOption) (*types.DeleteVmResponse, error) {
	out := new(types.DeleteVmResponse)
	if err := c.cc.Invoke(ctx, methodDeleteVm, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) StartVm(ctx context.Context, in *types.StartVmRequest, opts ...grpc.CallOption) (*types.Vm, error) {
	out := new(types.Vm)
	if err := c.cc.Invoke(ctx, methodStartVm, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) StopVm(ctx context.Context, in *types.StopVmRequest, opts ...grpc.CallOption) (*types.Vm, error) {
	out := new(types.Vm)
	if err := c.cc.Invoke(ctx, methodStopVm, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) KillVm(ctx context.Context, in *types.KillVmRequest, opts ...grpc.CallOption) (*types.Vm, error) {
	out := new(types.Vm)
	if err := c.cc.Invoke(ctx, methodKillVm, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *vmmServiceClient) Console(ctx context.Context, opts ...grpc.CallOption) (VmmService_ConsoleClient, error) {
	stream, err := c.cc.NewStream(ctx, &VmmService_ServiceDesc.Streams[0], methodConsole, opts...)
	if err != nil {
		return nil, err
	}

	return &vmmServiceConsoleClient{stream}, nil
}

// VmmService_ConsoleClient is the bidi-stream handle returned to console
// clients.
type VmmService_ConsoleClient interface {
	Send(*types.ConsoleFrame) error
	Recv() (*types.ConsoleFrame, error)
	grpc.ClientStream
}

type vmmServiceConsoleClient struct {
	grpc.ClientStream
}

func (x *vmmServiceConsoleClient) Send(m *types.ConsoleFrame) error {
	return x.ClientStream.SendMsg(m)
}

func (x *vmmServiceConsoleClient) Recv() (*types.ConsoleFrame, error) {
	m := new(types.ConsoleFrame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

// VmmServiceServer is the server API for VmmService.
type VmmServiceServer interface {
	GetSystemInfo(context.Context, *types.GetSystemInfoRequest) (*types.SystemInfo, error)
	CreateVm(context.Context, *types.CreateVmRequest) (*types.Vm, error)
	GetVm(context.Context, *types.GetVmRequest) (*types.Vm, error)
	ListVms(context.Context, *types.ListVmsRequest) (*types.ListVmsResponse, error)
	DeleteVm(context.Context, *types.DeleteVmRequest) (*types.DeleteVmResponse, error)
	StartVm(context.Context, *types.StartVmRequest) (*types.Vm, error)
	StopVm(context.Context, *types.StopVmRequest) (*types.Vm, error)
	KillVm(context.Context, *types.KillVmRequest) (*types.Vm, error)
	Console(VmmService_ConsoleServer) error
}

// UnimplementedVmmServiceServer can be embedded to get forward-compatible
// implementations; every method returns Unimplemented.
type UnimplementedVmmServiceServer struct{}

func (UnimplementedVmmServiceServer) GetSystemInfo(context.Context, *types.GetSystemInfoRequest) (*types.SystemInfo, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetSystemInfo not implemented")
}

func (UnimplementedVmmServiceServer) CreateVm(context.Context, *types.CreateVmRequest) (*types.Vm, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreateVm not implemented")
}

func (UnimplementedVmmServiceServer) GetVm(context.Context, *types.GetVmRequest) (*types.Vm, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetVm not implemented")
}

func (UnimplementedVmmServiceServer) ListVms(context.Context, *types.ListVmsRequest) (*types.ListVmsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListVms not implemented")
}

func (UnimplementedVmmServiceServer) DeleteVm(context.Context, *types.DeleteVmRequest) (*types.DeleteVmResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteVm not implemented")
}

func (UnimplementedVmmServiceServer) StartVm(context.Context, *types.StartVmRequest) (*types.Vm, error) {
	return nil, status.Errorf(codes.Unimplemented, "method StartVm not implemented")
}

func (UnimplementedVmmServiceServer) StopVm(context.Context, *types.StopVmRequest) (*types.Vm, error) {
	return nil, status.Errorf(codes.Unimplemented, "method StopVm not implemented")
}

func (UnimplementedVmmServiceServer) KillVm(context.Context, *types.KillVmRequest) (*types.Vm, error) {
	return nil, status.Errorf(codes.Unimplemented, "method KillVm not implemented")
}

func (UnimplementedVmmServiceServer) Console(VmmService_ConsoleServer) error {
	return status.Errorf(codes.Unimplemented, "method Console not implemented")
}

// RegisterVmmServiceServer registers srv on s.
func RegisterVmmServiceServer(s grpc.ServiceRegistrar, srv VmmServiceServer) {
	s.RegisterService(&VmmService_ServiceDesc, srv)
}

func _VmmService_GetSystemInfo_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.GetSystemInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).GetSystemInfo(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetSystemInfo}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).GetSystemInfo(ctx, req.(*types.GetSystemInfoRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_CreateVm_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.CreateVmRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).CreateVm(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCreateVm}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).CreateVm(ctx, req.(*types.CreateVmRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_GetVm_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.GetVmRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).GetVm(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetVm}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).GetVm(ctx, req.(*types.GetVmRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_ListVms_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.ListVmsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).ListVms(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListVms}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).ListVms(ctx, req.(*types.ListVmsRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_DeleteVm_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.DeleteVmRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).DeleteVm(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDeleteVm}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).DeleteVm(ctx, req.(*types.DeleteVmRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_StartVm_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.StartVmRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).StartVm(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStartVm}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).StartVm(ctx, req.(*types.StartVmRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_StopVm_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.StopVmRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).StopVm(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStopVm}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).StopVm(ctx, req.(*types.StopVmRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_KillVm_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(types.KillVmRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(VmmServiceServer).KillVm(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodKillVm}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VmmServiceServer).KillVm(ctx, req.(*types.KillVmRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func _VmmService_Console_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(VmmServiceServer).Console(&vmmServiceConsoleServer{stream})
}

// VmmService_ConsoleServer is the bidi-stream handle passed to the server's
// Console implementation.
type VmmService_ConsoleServer interface {
	Send(*types.ConsoleFrame) error
	Recv() (*types.ConsoleFrame, error)
	grpc.ServerStream
}

type vmmServiceConsoleServer struct {
	grpc.ServerStream
}

func (x *vmmServiceConsoleServer) Send(m *types.ConsoleFrame) error {
	return x.ServerStream.SendMsg(m)
}

func (x *vmmServiceConsoleServer) Recv() (*types.ConsoleFrame, error) {
	m := new(types.ConsoleFrame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

// VmmService_ServiceDesc is the grpc.ServiceDesc for VmmService.
var VmmService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VmmServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSystemInfo", Handler: _VmmService_GetSystemInfo_Handler},
		{MethodName: "CreateVm", Handler: _VmmService_CreateVm_Handler},
		{MethodName: "GetVm", Handler: _VmmService_GetVm_Handler},
		{MethodName: "ListVms", Handler: _VmmService_ListVms_Handler},
		{MethodName: "DeleteVm", Handler: _VmmService_DeleteVm_Handler},
		{MethodName: "StartVm", Handler: _VmmService_StartVm_Handler},
		{MethodName: "StopVm", Handler: _VmmService_StopVm_Handler},
		{MethodName: "KillVm", Handler: _VmmService_KillVm_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Console",
			Handler:       _VmmService_Console_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "proto/mvirt.proto",
}
