package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/derby/internal/auth"
	"github.com/cory-johannsen/derby/internal/game/errs"
)

// RaceServiceName is the fully qualified gRPC service name.
const RaceServiceName = "derby.v1.RaceService"

// RaceServiceServer is the gRPC surface of RaceService. Requests and replies
// are google.protobuf.Struct documents carrying the same JSON bodies as the
// HTTP API.
type RaceServiceServer interface {
	StartRace(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Settle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRace(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// GRPCRaceServer adapts RaceService to RaceServiceServer.
type GRPCRaceServer struct {
	races  *RaceService
	logger *zap.Logger
}

var _ RaceServiceServer = (*GRPCRaceServer)(nil)

// NewGRPCRaceServer creates a GRPCRaceServer.
//
// Precondition: races and logger must be non-nil.
func NewGRPCRaceServer(races *RaceService, logger *zap.Logger) *GRPCRaceServer {
	return &GRPCRaceServer{races: races, logger: logger}
}

type startRaceRequest struct {
	Pick int   `json:"pick"`
	Bet  int64 `json:"bet"`
}

type applyItemRequest struct {
	RaceID string `json:"raceId"`
	Item   string `json:"item"`
	Target int    `json:"target"`
}

type raceRequest struct {
	RaceID string `json:"raceId"`
}

// StartRace implements RaceServiceServer.
func (g *GRPCRaceServer) StartRace(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req startRaceRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	return respond(ctx, func(c auth.Caller) (any, error) {
		return g.races.Start(ctx, c, req.Pick, req.Bet)
	})
}

// ApplyItem implements RaceServiceServer.
func (g *GRPCRaceServer) ApplyItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req applyItemRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	return respond(ctx, func(c auth.Caller) (any, error) {
		return g.races.ApplyItem(ctx, c, req.RaceID, req.Item, req.Target)
	})
}

// Settle implements RaceServiceServer.
func (g *GRPCRaceServer) Settle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req raceRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	return respond(ctx, func(c auth.Caller) (any, error) {
		return g.races.Settle(ctx, c, req.RaceID)
	})
}

// GetRace implements RaceServiceServer.
func (g *GRPCRaceServer) GetRace(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req raceRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	return respond(ctx, func(c auth.Caller) (any, error) {
		return g.races.Get(ctx, c, req.RaceID)
	})
}

func respond(ctx context.Context, call func(auth.Caller) (any, error)) (*structpb.Struct, error) {
	caller, ok := auth.CallerFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing caller")
	}
	out, err := call(caller)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return encodeStruct(out)
}

func decodeStruct(in *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encoding request: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "decoding reply: %v", err)
	}
	return out, nil
}

// StatusFromError maps a service error kind to a gRPC status.
func StatusFromError(err error) error {
	code := codes.Internal
	switch errs.KindOf(err) {
	case errs.InvalidWager:
		code = codes.InvalidArgument
	case errs.InsufficientPoints, errs.PolicyViolation, errs.TooEarly:
		code = codes.FailedPrecondition
	case errs.NotFound:
		code = codes.NotFound
	case errs.Forbidden:
		code = codes.PermissionDenied
	case errs.Unauthenticated:
		code = codes.Unauthenticated
	case errs.StorageFailure:
		code = codes.Unavailable
	}
	var e *errs.Error
	if errors.As(err, &e) && code != codes.Internal {
		return status.Error(code, fmt.Sprintf("%s: %s", e.Kind, e.Message))
	}
	return status.Error(code, err.Error())
}

// AuthInterceptor resolves the "authorization" metadata into an auth.Caller
// on the request context.
//
// Precondition: v must be non-nil.
func AuthInterceptor(v *auth.Verifier, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var token string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				token = auth.BearerToken(vals[0])
			}
		}
		caller, err := v.Resolve(token)
		if err != nil {
			logger.Debug("grpc: rejected token", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, StatusFromError(err)
		}
		return handler(auth.WithCaller(ctx, caller), req)
	}
}

// RegisterRaceServiceServer registers srv on s.
func RegisterRaceServiceServer(s grpc.ServiceRegistrar, srv RaceServiceServer) {
	s.RegisterService(&raceServiceDesc, srv)
}

func unaryHandler(method string, call func(RaceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RaceServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + RaceServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RaceServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var raceServiceDesc = grpc.ServiceDesc{
	ServiceName: RaceServiceName,
	HandlerType: (*RaceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("StartRace", RaceServiceServer.StartRace),
		unaryHandler("ApplyItem", RaceServiceServer.ApplyItem),
		unaryHandler("Settle", RaceServiceServer.Settle),
		unaryHandler("GetRace", RaceServiceServer.GetRace),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "derby/v1/race.proto",
}
