package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MrTeeett/fwpanel/internal/system"
)

const panelGRPCServiceName = "fwpanel.v1.Panel"

type panelGRPCService interface {
	GetRuleset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ApplyCommand(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type panelGRPCHandler struct {
	srv *Server
}

func (s *Server) GRPCServer() *grpc.Server {
	gs := grpc.NewServer(grpc.UnaryInterceptor(s.grpcAuthUnaryInterceptor))
	gs.RegisterService(&panelGRPCServiceDesc, &panelGRPCHandler{srv: s})
	return gs
}

// RootHandler serves gRPC and the HTML panel on one plaintext port.
func (s *Server) RootHandler() http.Handler {
	return h2c.NewHandler(GRPCMux(s.Handler(), s.GRPCServer()), &http2.Server{})
}

func GRPCMux(httpHandler http.Handler, grpcServer *grpc.Server) http.Handler {
	if grpcServer == nil {
		return httpHandler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/grpc") {
			grpcServer.ServeHTTP(w, r)
			return
		}
		httpHandler.ServeHTTP(w, r)
	})
}

func (h *panelGRPCHandler) GetRuleset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res := h.srv.rules.Read(ctx)
	return toPBStruct(map[string]any{
		"tool":      string(h.srv.rules.Tool()),
		"command":   res.CommandLine(),
		"code":      res.Code,
		"output":    res.Output,
		"timed_out": res.TimedOut,
	})
}

func (h *panelGRPCHandler) ApplyCommand(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if !h.srv.exec.Enabled() {
		return nil, status.Error(codes.PermissionDenied, system.ErrControlDisabled.Error())
	}
	cmd := in.GetFields()["cmd"].GetStringValue()
	res, err := h.srv.exec.Run(context.WithoutCancel(ctx), cmd)
	switch {
	case errors.Is(err, system.ErrControlDisabled):
		return nil, status.Error(codes.PermissionDenied, err.Error())
	case err != nil:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return toPBStruct(map[string]any{
		"command":   res.CommandLine(),
		"code":      res.Code,
		"output":    res.Output,
		"timed_out": res.TimedOut,
	})
}

func (s *Server) grpcAuthUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	if !s.auth.Check(firstMetadata(md, "authorization")) {
		s.metrics.AuthFailures.Inc()
		remote := ""
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}
		slog.Warn("authentication failed", "remote", remote, "method", info.FullMethod)
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	return handler(ctx, req)
}

func firstMetadata(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	v := md.Get(strings.ToLower(strings.TrimSpace(key)))
	if len(v) == 0 {
		return ""
	}
	return strings.TrimSpace(v[0])
}

func toPBStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

var panelGRPCServiceDesc = grpc.ServiceDesc{
	ServiceName: panelGRPCServiceName,
	HandlerType: (*panelGRPCService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetRuleset",
			Handler:    _Panel_GetRuleset_Handler,
		},
		{
			MethodName: "ApplyCommand",
			Handler:    _Panel_ApplyCommand_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fwpanel/v1/panel.proto",
}

func _Panel_GetRuleset_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(panelGRPCService).GetRuleset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + panelGRPCServiceName + "/GetRuleset",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(panelGRPCService).GetRuleset(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Panel_ApplyCommand_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(panelGRPCService).ApplyCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + panelGRPCServiceName + "/ApplyCommand",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(panelGRPCService).ApplyCommand(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
