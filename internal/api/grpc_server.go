package api

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"reservas/internal/config"
	"reservas/internal/domain"
	"reservas/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const bookingServiceName = "reservas.booking.v1.BookingService"

// bookingServer is the contract behind bookingServiceDesc. Messages are
// google.protobuf.Struct so no generated code is needed.
type bookingServer interface {
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*bookingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: unaryHandler("CheckAvailability", bookingServer.CheckAvailability)},
		{MethodName: "GetReservation", Handler: unaryHandler("GetReservation", bookingServer.GetReservation)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reservas/booking/v1/booking.proto",
}

func unaryHandler(method string, call func(bookingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + bookingServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(bookingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(bookingServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BookingGRPC answers availability and lookup calls from other services.
type BookingGRPC struct {
	bookings BookingService
}

func NewBookingGRPC(bookings BookingService) *BookingGRPC {
	return &BookingGRPC{bookings: bookings}
}

func (g *BookingGRPC) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	spaceID, err := int64Field(req, "space_id")
	if err != nil {
		return nil, err
	}
	start, err := timeField(req, "start")
	if err != nil {
		return nil, err
	}
	end, err := timeField(req, "end")
	if err != nil {
		return nil, err
	}

	a, err := g.bookings.Availability(ctx, spaceID, start, end)
	if err != nil {
		return nil, grpcStatus(err)
	}
	conflicts := make([]any, 0, len(a.Conflicts))
	for _, r := range a.Conflicts {
		conflicts = append(conflicts, reservationFields(r))
	}
	return structpb.NewStruct(map[string]any{
		"space_id":  float64(a.SpaceID),
		"start":     a.Start.Format(time.RFC3339),
		"end":       a.End.Format(time.RFC3339),
		"available": a.Available,
		"conflicts": conflicts,
	})
}

func (g *BookingGRPC) GetReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := int64Field(req, "id")
	if err != nil {
		return nil, err
	}
	r, err := g.bookings.Get(ctx, id)
	if err != nil {
		return nil, grpcStatus(err)
	}
	fields := reservationFields(r)
	view := g.bookings.View(r)
	fields["display_status"] = view.DisplayStatus
	fields["can_modify"] = view.CanModify
	fields["can_cancel"] = view.CanCancel
	return structpb.NewStruct(fields)
}

func reservationFields(r *models.Reservation) map[string]any {
	return map[string]any{
		"id":             float64(r.ID),
		"user_id":        float64(r.UserID),
		"space_id":       float64(r.SpaceID),
		"start":          r.Start.Format(time.RFC3339),
		"end":            r.End.Format(time.RFC3339),
		"hours":          float64(r.Hours),
		"status":         r.Status.String(),
		"total":          r.Total.StringFixed(2),
		"transaction_id": r.TransactionID,
	}
}

func int64Field(s *structpb.Struct, name string) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	var id int64
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		id = int64(kind.NumberValue)
		if float64(id) != kind.NumberValue {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
		}
	case *structpb.Value_StringValue:
		parsed, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
		}
		id = parsed
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	if id <= 0 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be positive", name)
	}
	return id, nil
}

func timeField(s *structpb.Struct, name string) (time.Time, error) {
	raw := s.GetFields()[name].GetStringValue()
	if raw == "" {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s must be RFC 3339", name)
	}
	return t.UTC(), nil
}

type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg config.APIConfig, bookings BookingService, verifier domain.TokenVerifier, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return NewGRPCServerWithListener(lis, cfg, bookings, verifier, logger), nil
}

// NewGRPCServerWithListener serves on an existing listener, such as a bufconn in tests.
func NewGRPCServerWithListener(lis net.Listener, cfg config.APIConfig, bookings BookingService, verifier domain.TokenVerifier, logger *zerolog.Logger) *GRPCServer {
	if !cfg.Auth.Enabled {
		verifier = nil
	}
	auth := NewBearerInterceptor(verifier, newRateLimiter(cfg.RateLimit), logger)
	unary := ChainUnaryInterceptors(
		LoggingUnaryInterceptor(logger),
		auth.Unary(),
	)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(unary))
	grpcServer.RegisterService(&bookingServiceDesc, NewBookingGRPC(bookings))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(bookingServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	var serverLogger zerolog.Logger
	if logger != nil {
		serverLogger = logger.With().Str("component", "grpc").Logger()
	}

	return &GRPCServer{
		server:   grpcServer,
		health:   healthServer,
		listener: lis,
		log:      serverLogger,
	}
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
	}
}
