package sessionsgrpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed client for the Sessions service. Every call is sent with
// the JSON content subtype.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, LoginFullMethodName, in, opts)
}

func (c *Client) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c.cc, LogoutFullMethodName, in, opts)
}

func (c *Client) Validate(ctx context.Context, in *ValidateRequest, opts ...grpc.CallOption) (*ValidateResponse, error) {
	return invoke[ValidateResponse](ctx, c.cc, ValidateFullMethodName, in, opts)
}

func (c *Client) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*RefreshResponse, error) {
	return invoke[RefreshResponse](ctx, c.cc, RefreshFullMethodName, in, opts)
}

func (c *Client) ActiveSessions(ctx context.Context, in *ActiveSessionsRequest, opts ...grpc.CallOption) (*ActiveSessionsResponse, error) {
	return invoke[ActiveSessionsResponse](ctx, c.cc, ActiveSessionsFullMethodName, in, opts)
}

func (c *Client) AllSessions(ctx context.Context, in *AllSessionsRequest, opts ...grpc.CallOption) (*AllSessionsResponse, error) {
	return invoke[AllSessionsResponse](ctx, c.cc, AllSessionsFullMethodName, in, opts)
}

func (c *Client) SessionDetails(ctx context.Context, in *SessionDetailsRequest, opts ...grpc.CallOption) (*SessionDetailsResponse, error) {
	return invoke[SessionDetailsResponse](ctx, c.cc, SessionDetailsFullMethodName, in, opts)
}

func (c *Client) RevokeSession(ctx context.Context, in *RevokeSessionRequest, opts ...grpc.CallOption) (*RevokeSessionResponse, error) {
	return invoke[RevokeSessionResponse](ctx, c.cc, RevokeSessionFullMethodName, in, opts)
}

func (c *Client) RevokeAllSessions(ctx context.Context, in *RevokeAllSessionsRequest, opts ...grpc.CallOption) (*RevokeAllSessionsResponse, error) {
	return invoke[RevokeAllSessionsResponse](ctx, c.cc, RevokeAllSessionsFullMethodName, in, opts)
}
