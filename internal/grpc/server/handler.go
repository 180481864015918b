package grpcserver

import (
	"context"
	"errors"

	"github.com/ak7sky/asn-service/internal/core"
	"github.com/ak7sky/asn-service/internal/core/matcher"
	"github.com/ak7sky/asn-service/internal/core/model"
	api "github.com/ak7sky/asn-service/internal/grpc/api"
	"github.com/ak7sky/asn-service/internal/provider"
	"github.com/golang/protobuf/ptypes/empty"
	"github.com/golang/protobuf/ptypes/wrappers"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type serverHandler struct {
	api.UnimplementedMatchServiceServer
	asnsrv core.AsnService
	ranges *matcher.Matcher
}

func newHandler(asnsrv core.AsnService, ranges *matcher.Matcher) *serverHandler {
	if ranges == nil {
		ranges = matcher.NewBuilder().Compile()
	}
	return &serverHandler{asnsrv: asnsrv, ranges: ranges}
}

func (s *serverHandler) Match(_ context.Context, ip *wrappers.StringValue) (*structpb.Struct, error) {
	res, err := structpb.NewStruct(s.ranges.Match(ip.GetValue()).Export())
	return res, errResponse(err)
}

func (s *serverHandler) MatchBatch(_ context.Context, ips *structpb.ListValue) (*structpb.ListValue, error) {
	texts := make([]string, 0, len(ips.GetValues()))
	for _, v := range ips.GetValues() {
		texts = append(texts, v.GetStringValue())
	}
	results := s.ranges.MatchBatch(texts)
	exported := make([]any, 0, len(results))
	for _, res := range results {
		exported = append(exported, res.Export())
	}
	list, err := structpb.NewList(exported)
	return list, errResponse(err)
}

func (s *serverHandler) LookupIP(ctx context.Context, ip *wrappers.StringValue) (*structpb.Struct, error) {
	info, err := s.asnsrv.LookupIP(ctx, ip.GetValue())
	if err != nil {
		return nil, errResponse(err)
	}
	res, err := structpb.NewStruct(info.Export())
	return res, errResponse(err)
}

func (s *serverHandler) Prefixes(ctx context.Context, asn *wrappers.Int64Value) (*structpb.ListValue, error) {
	prefixes, err := s.asnsrv.Prefixes(ctx, int(asn.GetValue()))
	if err != nil {
		return nil, errResponse(err)
	}
	exported := make([]any, 0, len(prefixes))
	for _, p := range prefixes {
		exported = append(exported, p.Export())
	}
	list, err := structpb.NewList(exported)
	return list, errResponse(err)
}

func (s *serverHandler) Stats(context.Context, *empty.Empty) (*structpb.Struct, error) {
	res, err := structpb.NewStruct(map[string]any{
		"mode":        s.ranges.Mode().String(),
		"ranges":      s.ranges.Count(),
		"ipv4_ranges": len(s.ranges.V4Ranges()),
		"ipv6_ranges": len(s.ranges.V6Ranges()),
	})
	return res, errResponse(err)
}

func errResponse(errSrv error) error {
	switch {
	case errSrv == nil:
		return nil
	case errors.Is(errSrv, provider.ErrIPNotFound), errors.Is(errSrv, provider.ErrAsnNotFound):
		return status.Error(codes.NotFound, errSrv.Error())
	case errors.Is(errSrv, model.ErrInvalidAddress):
		return status.Error(codes.InvalidArgument, errSrv.Error())
	case errors.Is(errSrv, provider.ErrRequestFailed),
		errors.Is(errSrv, gobreaker.ErrOpenState),
		errors.Is(errSrv, gobreaker.ErrTooManyRequests):
		return status.Error(codes.Unavailable, errSrv.Error())
	case errors.Is(errSrv, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, errSrv.Error())
	case errors.Is(errSrv, context.Canceled):
		return status.Error(codes.Canceled, errSrv.Error())
	default:
		return status.Error(codes.Internal, errSrv.Error())
	}
}
