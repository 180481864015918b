package grpcserver

import (
	"context"
	"math"

	"github.com/ak7sky/asn-service/internal/core/model"
	api "github.com/ak7sky/asn-service/internal/grpc/api"
	"github.com/ak7sky/asn-service/internal/logger"
	"github.com/golang/protobuf/ptypes/wrappers"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const maxBatchSize = 100_000

func loggerInterceptor(logger logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		logger.Info("rpc %s started", info.FullMethod)
		defer logger.Info("rpc %s finished", info.FullMethod)
		logger.Debug("request data: %v", req)
		res, err := handler(ctx, req)
		if err != nil {
			logger.Error("error on rpc %s: %v", info.FullMethod, err)
		}
		return res, err
	}
}

func reqValidatorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		switch info.FullMethod {
		case api.MatchService_Match_FullMethodName:
			reqMsg := req.(*wrappers.StringValue)
			if reqMsg.GetValue() == "" {
				return nil, status.Errorf(codes.InvalidArgument, "invalid request: missed required field (ip)")
			}

		case api.MatchService_LookupIP_FullMethodName:
			reqMsg := req.(*wrappers.StringValue)
			if _, err := model.ParseAddress(reqMsg.GetValue()); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
			}

		case api.MatchService_Prefixes_FullMethodName:
			reqMsg := req.(*wrappers.Int64Value)
			if reqMsg.GetValue() <= 0 || reqMsg.GetValue() > math.MaxUint32 {
				return nil, status.Errorf(codes.InvalidArgument, "invalid request: asn %d out of range", reqMsg.GetValue())
			}

		case api.MatchService_MatchBatch_FullMethodName:
			reqMsg := req.(*structpb.ListValue)
			if len(reqMsg.GetValues()) == 0 || len(reqMsg.GetValues()) > maxBatchSize {
				return nil, status.Errorf(
					codes.InvalidArgument, "invalid request: batch must hold 1 to %d ips", maxBatchSize,
				)
			}
			for i, v := range reqMsg.GetValues() {
				if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok {
					return nil, status.Errorf(codes.InvalidArgument, "invalid request: item %d is not a string", i)
				}
			}
		}
		return handler(ctx, req)
	}
}
