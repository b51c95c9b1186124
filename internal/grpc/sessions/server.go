package sessionsgrpc

import (
	"context"
	"net"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/realip"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"sessions/internal/grpc/grpcerr"
	"sessions/internal/interceptors"
	"sessions/internal/lib/device"
	"sessions/internal/services/sessions"
)

type serverAPI struct {
	manager Manager
}

type Manager interface {
	Login(ctx context.Context, req sessions.LoginRequest) (sessions.SessionBundle, error)
	RefreshSession(ctx context.Context, refreshToken string, sessionID string) (sessions.TokenBundle, error)
	Logout(ctx context.Context, sessionID string, rawToken string) error
	GetActiveSessions(ctx context.Context, userID string) ([]sessions.SessionInfo, error)
	GetAllSessions(ctx context.Context, userID string, req sessions.PageRequest) (sessions.SessionPage, error)
	GetSessionDetails(ctx context.Context, sessionID string) (sessions.SessionDetails, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeAllSessions(ctx context.Context, userID string, exceptSessionID string) (sessions.RevokeResult, error)
}

func Register(gRPCServer *grpc.Server, manager Manager) {
	RegisterSessionsServer(gRPCServer, &serverAPI{manager: manager})
}

func (s *serverAPI) Login(ctx context.Context, in *LoginRequest) (*LoginResponse, error) {
	if in.Identifier == "" || in.Secret == "" {
		return nil, status.Error(codes.InvalidArgument, "identifier and secret are required")
	}

	bundle, err := s.manager.Login(ctx, sessions.LoginRequest{
		Identifier: in.Identifier,
		Secret:     in.Secret,
		RememberMe: in.RememberMe,
		Metadata:   requestMetadata(ctx),
	})
	if err != nil {
		return nil, grpcerr.Status(err)
	}

	return &LoginResponse{
		SessionID:    bundle.SessionID,
		AccessToken:  bundle.AccessToken,
		RefreshToken: bundle.RefreshToken,
		IDToken:      bundle.IDToken,
		ExpiresIn:    bundle.ExpiresIn,
		ExpiresAt:    bundle.ExpiresAt,
		User:         toUser(bundle.User),
	}, nil
}

func (s *serverAPI) Logout(ctx context.Context, in *LogoutRequest) (*LogoutResponse, error) {
	if in.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "sessionId is required")
	}

	token := in.AccessToken
	if token == "" {
		token, _ = interceptors.BearerToken(ctx)
	}

	if err := s.manager.Logout(ctx, in.SessionID, token); err != nil {
		return nil, grpcerr.Status(err)
	}

	return &LogoutResponse{Success: true}, nil
}

func (s *serverAPI) Validate(ctx context.Context, _ *ValidateRequest) (*ValidateResponse, error) {
	sc, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	info := toSession(sc.Session)
	info.Current = true

	return &ValidateResponse{
		SessionID:   sc.SessionID,
		UserID:      sc.UserID,
		User:        toUser(sc.User),
		SessionInfo: info,
	}, nil
}

func (s *serverAPI) Refresh(ctx context.Context, in *RefreshRequest) (*RefreshResponse, error) {
	if in.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refreshToken is required")
	}

	bundle, err := s.manager.RefreshSession(ctx, in.RefreshToken, in.SessionID)
	if err != nil {
		return nil, grpcerr.Status(err)
	}

	return &RefreshResponse{
		AccessToken:  bundle.AccessToken,
		IDToken:      bundle.IDToken,
		RefreshToken: bundle.RefreshToken,
		ExpiresIn:    bundle.ExpiresIn,
		ExpiresAt:    bundle.ExpiresAt,
	}, nil
}

func (s *serverAPI) ActiveSessions(ctx context.Context, in *ActiveSessionsRequest) (*ActiveSessionsResponse, error) {
	sc, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := ownUser(sc, in.UserID)
	if err != nil {
		return nil, err
	}

	list, err := s.manager.GetActiveSessions(ctx, userID)
	if err != nil {
		return nil, grpcerr.Status(err)
	}

	return &ActiveSessionsResponse{
		ActiveSessionsCount: len(list),
		Sessions:            toSessions(list, sc.SessionID),
	}, nil
}

func (s *serverAPI) AllSessions(ctx context.Context, in *AllSessionsRequest) (*AllSessionsResponse, error) {
	sc, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := ownUser(sc, in.UserID)
	if err != nil {
		return nil, err
	}

	page, err := s.manager.GetAllSessions(ctx, userID, sessions.PageRequest{
		Limit:  in.Limit,
		Cursor: in.NextToken,
	})
	if err != nil {
		return nil, grpcerr.Status(err)
	}

	return &AllSessionsResponse{
		Sessions:  toSessions(page.Sessions, sc.SessionID),
		NextToken: page.NextCursor,
	}, nil
}

func (s *serverAPI) SessionDetails(ctx context.Context, in *SessionDetailsRequest) (*SessionDetailsResponse, error) {
	sc, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	details, err := s.ownSession(ctx, sc, in.SessionID)
	if err != nil {
		return nil, err
	}

	info := toSession(details.Session)
	info.Current = details.Session.SessionID == sc.SessionID

	return &SessionDetailsResponse{
		Session: info,
		User:    toUser(details.User),
	}, nil
}

func (s *serverAPI) RevokeSession(ctx context.Context, in *RevokeSessionRequest) (*RevokeSessionResponse, error) {
	sc, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownSession(ctx, sc, in.SessionID); err != nil {
		return nil, err
	}

	if err := s.manager.RevokeSession(ctx, in.SessionID); err != nil {
		return nil, grpcerr.Status(err)
	}

	return &RevokeSessionResponse{Success: true}, nil
}

func (s *serverAPI) RevokeAllSessions(ctx context.Context, in *RevokeAllSessionsRequest) (*RevokeAllSessionsResponse, error) {
	sc, err := caller(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := ownUser(sc, in.UserID)
	if err != nil {
		return nil, err
	}

	result, err := s.manager.RevokeAllSessions(ctx, userID, in.ExceptSessionID)
	if err != nil {
		return nil, grpcerr.Status(err)
	}

	return &RevokeAllSessionsResponse{
		RevokedCount:  result.Revoked,
		TotalSessions: result.Total,
	}, nil
}

func (s *serverAPI) ownSession(ctx context.Context, sc sessions.SessionContext, sessionID string) (sessions.SessionDetails, error) {
	if sessionID == "" {
		return sessions.SessionDetails{}, status.Error(codes.InvalidArgument, "sessionId is required")
	}

	details, err := s.manager.GetSessionDetails(ctx, sessionID)
	if err != nil {
		return sessions.SessionDetails{}, grpcerr.Status(err)
	}
	if details.Session.UserID != sc.UserID {
		return sessions.SessionDetails{}, status.Error(codes.PermissionDenied, "session belongs to another user")
	}

	return details, nil
}

func caller(ctx context.Context) (sessions.SessionContext, error) {
	sc, ok := interceptors.SessionFromContext(ctx)
	if !ok {
		return sessions.SessionContext{}, status.Error(codes.Unauthenticated, "missing authorization token")
	}
	return sc, nil
}

// ownUser resolves the target user of a per-user call. Callers may only act on themselves.
func ownUser(sc sessions.SessionContext, requested string) (string, error) {
	if requested != "" && requested != sc.UserID {
		return "", status.Error(codes.PermissionDenied, "cannot act on another user's sessions")
	}
	return sc.UserID, nil
}

// requestMetadata collects what device extraction needs. The address comes
// from the realip interceptor when it resolved one, otherwise from the peer.
func requestMetadata(ctx context.Context) device.RequestMetadata {
	var md device.RequestMetadata

	if in, ok := metadata.FromIncomingContext(ctx); ok {
		for _, key := range []string{"x-user-agent", "user-agent"} {
			if values := in.Get(key); len(values) > 0 && values[0] != "" {
				md.UserAgent = values[0]
				break
			}
		}
	}

	if addr, ok := realip.FromContext(ctx); ok && addr.IsValid() {
		md.RemoteAddr = addr.String()
	} else if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		md.RemoteAddr = p.Addr.String()
		if host, _, err := net.SplitHostPort(md.RemoteAddr); err == nil {
			md.RemoteAddr = host
		}
	}

	return md
}

func toUser(u sessions.UserSummary) User {
	return User{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		RoleID:   u.RoleID,
		Status:   string(u.Status),
	}
}

func toSession(info sessions.SessionInfo) Session {
	return Session{
		SessionID:    info.SessionID,
		UserID:       info.UserID,
		DeviceInfo:   info.DeviceInfo,
		IPAddress:    info.IPAddress,
		State:        string(info.State),
		IsActive:     info.IsActive,
		CreatedAt:    info.CreatedAt,
		LastActiveAt: info.LastActiveAt,
		ExpiresAt:    info.ExpiresAt,
		RevokedAt:    info.RevokedAt,
		LoggedOutAt:  info.LoggedOutAt,
		RevokeReason: string(info.RevokeReason),
	}
}

func toSessions(list []sessions.SessionInfo, currentID string) []Session {
	out := make([]Session, 0, len(list))
	for _, info := range list {
		s := toSession(info)
		s.Current = info.SessionID == currentID
		out = append(out, s)
	}
	return out
}
