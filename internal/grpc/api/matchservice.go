// Package api describes asn.v1.MatchService. Requests and responses are
// protobuf well-known types, so no generated message code is needed.
package api

import (
	"context"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/golang/protobuf/ptypes/wrappers"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "asn.v1.MatchService"

const (
	MatchService_Match_FullMethodName      = "/asn.v1.MatchService/Match"
	MatchService_MatchBatch_FullMethodName = "/asn.v1.MatchService/MatchBatch"
	MatchService_LookupIP_FullMethodName   = "/asn.v1.MatchService/LookupIP"
	MatchService_Prefixes_FullMethodName   = "/asn.v1.MatchService/Prefixes"
	MatchService_Stats_FullMethodName      = "/asn.v1.MatchService/Stats"
)

type MatchServiceServer interface {
	// Match checks one address against the served ranges.
	Match(context.Context, *wrappers.StringValue) (*structpb.Struct, error)
	// MatchBatch checks a list of addresses, keeping their order.
	MatchBatch(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
	// LookupIP reports the autonomous system announcing an address.
	LookupIP(context.Context, *wrappers.StringValue) (*structpb.Struct, error)
	// Prefixes lists the prefixes announced by an ASN.
	Prefixes(context.Context, *wrappers.Int64Value) (*structpb.ListValue, error)
	// Stats describes the served matcher.
	Stats(context.Context, *empty.Empty) (*structpb.Struct, error)
}

// UnimplementedMatchServiceServer answers every method with codes.Unimplemented.
type UnimplementedMatchServiceServer struct{}

func (UnimplementedMatchServiceServer) Match(context.Context, *wrappers.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Match not implemented")
}

func (UnimplementedMatchServiceServer) MatchBatch(context.Context, *structpb.ListValue) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method MatchBatch not implemented")
}

func (UnimplementedMatchServiceServer) LookupIP(context.Context, *wrappers.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method LookupIP not implemented")
}

func (UnimplementedMatchServiceServer) Prefixes(context.Context, *wrappers.Int64Value) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Prefixes not implemented")
}

func (UnimplementedMatchServiceServer) Stats(context.Context, *empty.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Stats not implemented")
}

func RegisterMatchServiceServer(s grpc.ServiceRegistrar, srv MatchServiceServer) {
	s.RegisterService(&MatchService_ServiceDesc, srv)
}

func _MatchService_Match_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrappers.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).Match(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MatchService_Match_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).Match(ctx, req.(*wrappers.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _MatchService_MatchBatch_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).MatchBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MatchService_MatchBatch_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).MatchBatch(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _MatchService_LookupIP_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrappers.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).LookupIP(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MatchService_LookupIP_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).LookupIP(ctx, req.(*wrappers.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _MatchService_Prefixes_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrappers.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).Prefixes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MatchService_Prefixes_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).Prefixes(ctx, req.(*wrappers.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func _MatchService_Stats_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(empty.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MatchService_Stats_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).Stats(ctx, req.(*empty.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var MatchService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Match", Handler: _MatchService_Match_Handler},
		{MethodName: "MatchBatch", Handler: _MatchService_MatchBatch_Handler},
		{MethodName: "LookupIP", Handler: _MatchService_LookupIP_Handler},
		{MethodName: "Prefixes", Handler: _MatchService_Prefixes_Handler},
		{MethodName: "Stats", Handler: _MatchService_Stats_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "asn/v1/match.proto",
}

type MatchServiceClient interface {
	Match(ctx context.Context, in *wrappers.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	MatchBatch(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	LookupIP(ctx context.Context, in *wrappers.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	Prefixes(ctx context.Context, in *wrappers.Int64Value, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Stats(ctx context.Context, in *empty.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type matchServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMatchServiceClient(cc grpc.ClientConnInterface) MatchServiceClient {
	return &matchServiceClient{cc}
}

func (c *matchServiceClient) Match(ctx context.Context, in *wrappers.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MatchService_Match_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *matchServiceClient) MatchBatch(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MatchService_MatchBatch_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *matchServiceClient) LookupIP(ctx context.Context, in *wrappers.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MatchService_LookupIP_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *matchServiceClient) Prefixes(ctx context.Context, in *wrappers.Int64Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MatchService_Prefixes_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *matchServiceClient) Stats(ctx context.Context, in *empty.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MatchService_Stats_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
