package sessionsgrpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "sessions.v1.Sessions"

const (
	LoginFullMethodName             = "/" + ServiceName + "/Login"
	LogoutFullMethodName            = "/" + ServiceName + "/Logout"
	ValidateFullMethodName          = "/" + ServiceName + "/Validate"
	RefreshFullMethodName           = "/" + ServiceName + "/Refresh"
	ActiveSessionsFullMethodName    = "/" + ServiceName + "/ActiveSessions"
	AllSessionsFullMethodName       = "/" + ServiceName + "/AllSessions"
	SessionDetailsFullMethodName    = "/" + ServiceName + "/SessionDetails"
	RevokeSessionFullMethodName     = "/" + ServiceName + "/RevokeSession"
	RevokeAllSessionsFullMethodName = "/" + ServiceName + "/RevokeAllSessions"
)

// ProtectedMethods require a valid bearer session.
func ProtectedMethods() []string {
	return []string{
		ValidateFullMethodName,
		ActiveSessionsFullMethodName,
		AllSessionsFullMethodName,
		SessionDetailsFullMethodName,
		RevokeSessionFullMethodName,
		RevokeAllSessionsFullMethodName,
	}
}

type SessionsServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	Validate(context.Context, *ValidateRequest) (*ValidateResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
	ActiveSessions(context.Context, *ActiveSessionsRequest) (*ActiveSessionsResponse, error)
	AllSessions(context.Context, *AllSessionsRequest) (*AllSessionsResponse, error)
	SessionDetails(context.Context, *SessionDetailsRequest) (*SessionDetailsResponse, error)
	RevokeSession(context.Context, *RevokeSessionRequest) (*RevokeSessionResponse, error)
	RevokeAllSessions(context.Context, *RevokeAllSessionsRequest) (*RevokeAllSessionsResponse, error)
}

// unaryHandler builds a method handler the same way generated gRPC code does,
// decoding into Req and routing through the server's interceptor chain.
func unaryHandler[Req any, Resp any](fullMethod string, call func(SessionsServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SessionsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SessionsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var sessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(LoginFullMethodName, SessionsServer.Login)},
		{MethodName: "Logout", Handler: unaryHandler(LogoutFullMethodName, SessionsServer.Logout)},
		{MethodName: "Validate", Handler: unaryHandler(ValidateFullMethodName, SessionsServer.Validate)},
		{MethodName: "Refresh", Handler: unaryHandler(RefreshFullMethodName, SessionsServer.Refresh)},
		{MethodName: "ActiveSessions", Handler: unaryHandler(ActiveSessionsFullMethodName, SessionsServer.ActiveSessions)},
		{MethodName: "AllSessions", Handler: unaryHandler(AllSessionsFullMethodName, SessionsServer.AllSessions)},
		{MethodName: "SessionDetails", Handler: unaryHandler(SessionDetailsFullMethodName, SessionsServer.SessionDetails)},
		{MethodName: "RevokeSession", Handler: unaryHandler(RevokeSessionFullMethodName, SessionsServer.RevokeSession)},
		{MethodName: "RevokeAllSessions", Handler: unaryHandler(RevokeAllSessionsFullMethodName, SessionsServer.RevokeAllSessions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sessions/v1/sessions.proto",
}

func RegisterSessionsServer(s grpc.ServiceRegistrar, srv SessionsServer) {
	s.RegisterService(&sessionsServiceDesc, srv)
}
