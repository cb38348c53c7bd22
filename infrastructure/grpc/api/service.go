package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "courier.v1.Messaging"

const (
	Messaging_Register_FullMethodName           = "/courier.v1.Messaging/Register"
	Messaging_Login_FullMethodName              = "/courier.v1.Messaging/Login"
	Messaging_SendToUser_FullMethodName         = "/courier.v1.Messaging/SendToUser"
	Messaging_SendToService_FullMethodName      = "/courier.v1.Messaging/SendToService"
	Messaging_SendToGroup_FullMethodName        = "/courier.v1.Messaging/SendToGroup"
	Messaging_CreateGroup_FullMethodName        = "/courier.v1.Messaging/CreateGroup"
	Messaging_JoinGroup_FullMethodName          = "/courier.v1.Messaging/JoinGroup"
	Messaging_LeaveGroup_FullMethodName         = "/courier.v1.Messaging/LeaveGroup"
	Messaging_LoadMessages_FullMethodName       = "/courier.v1.Messaging/LoadMessages"
	Messaging_LoadUnreadMessages_FullMethodName = "/courier.v1.Messaging/LoadUnreadMessages"
	Messaging_MarkAsRead_FullMethodName         = "/courier.v1.Messaging/MarkAsRead"
	Messaging_SearchMessages_FullMethodName     = "/courier.v1.Messaging/SearchMessages"
	Messaging_Connect_FullMethodName            = "/courier.v1.Messaging/Connect"
)

// PublicMethods need no bearer token.
var PublicMethods = []string{Messaging_Register_FullMethodName, Messaging_Login_FullMethodName}

type Messaging_ConnectServer = grpc.ServerStreamingServer[Event]

type Messaging_ConnectClient = grpc.ServerStreamingClient[Event]

// MessagingServer is implemented by the transport adapter of the messaging service.
type MessagingServer interface {
	Register(context.Context, *CredentialRequest) (*TokenResponse, error)
	Login(context.Context, *CredentialRequest) (*TokenResponse, error)
	SendToUser(context.Context, *SendToUserRequest) (*SendResponse, error)
	SendToService(context.Context, *SendToServiceRequest) (*SendToServiceResponse, error)
	SendToGroup(context.Context, *SendToGroupRequest) (*SendToGroupResponse, error)
	CreateGroup(context.Context, *GroupRequest) (*Empty, error)
	JoinGroup(context.Context, *GroupRequest) (*Empty, error)
	LeaveGroup(context.Context, *GroupRequest) (*Empty, error)
	LoadMessages(context.Context, *LoadMessagesRequest) (*MessagesResponse, error)
	LoadUnreadMessages(context.Context, *Empty) (*MessagesResponse, error)
	MarkAsRead(context.Context, *MarkAsReadRequest) (*Empty, error)
	SearchMessages(context.Context, *SearchMessagesRequest) (*MessagesResponse, error)
	Connect(*ConnectRequest, Messaging_ConnectServer) error
}

// unary builds the method handler of one unary RPC, running interceptors
// the same way generated code does.
func unary[Req, Res any](fullMethod string, call func(MessagingServer, context.Context, *Req) (*Res, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MessagingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MessagingServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	in := new(ConnectRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MessagingServer).Connect(in, &grpc.GenericServerStream[ConnectRequest, Event]{ServerStream: stream})
}

var Messaging_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary(Messaging_Register_FullMethodName, MessagingServer.Register)},
		{MethodName: "Login", Handler: unary(Messaging_Login_FullMethodName, MessagingServer.Login)},
		{MethodName: "SendToUser", Handler: unary(Messaging_SendToUser_FullMethodName, MessagingServer.SendToUser)},
		{MethodName: "SendToService", Handler: unary(Messaging_SendToService_FullMethodName, MessagingServer.SendToService)},
		{MethodName: "SendToGroup", Handler: unary(Messaging_SendToGroup_FullMethodName, MessagingServer.SendToGroup)},
		{MethodName: "CreateGroup", Handler: unary(Messaging_CreateGroup_FullMethodName, MessagingServer.CreateGroup)},
		{MethodName: "JoinGroup", Handler: unary(Messaging_JoinGroup_FullMethodName, MessagingServer.JoinGroup)},
		{MethodName: "LeaveGroup", Handler: unary(Messaging_LeaveGroup_FullMethodName, MessagingServer.LeaveGroup)},
		{MethodName: "LoadMessages", Handler: unary(Messaging_LoadMessages_FullMethodName, MessagingServer.LoadMessages)},
		{MethodName: "LoadUnreadMessages", Handler: unary(Messaging_LoadUnreadMessages_FullMethodName, MessagingServer.LoadUnreadMessages)},
		{MethodName: "MarkAsRead", Handler: unary(Messaging_MarkAsRead_FullMethodName, MessagingServer.MarkAsRead)},
		{MethodName: "SearchMessages", Handler: unary(Messaging_SearchMessages_FullMethodName, MessagingServer.SearchMessages)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Connect", Handler: connectHandler, ServerStreams: true},
	},
	Metadata: "courier/v1/messaging",
}

func RegisterMessagingServer(s grpc.ServiceRegistrar, srv MessagingServer) {
	s.RegisterService(&Messaging_ServiceDesc, srv)
}

// MessagingClient is the client stub of courier.v1.Messaging.
type MessagingClient struct {
	cc grpc.ClientConnInterface
}

func NewMessagingClient(cc grpc.ClientConnInterface) *MessagingClient {
	return &MessagingClient{cc: cc}
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MessagingClient) Register(ctx context.Context, in *CredentialRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, Messaging_Register_FullMethodName, in, opts)
}

func (c *MessagingClient) Login(ctx context.Context, in *CredentialRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, Messaging_Login_FullMethodName, in, opts)
}

func (c *MessagingClient) SendToUser(ctx context.Context, in *SendToUserRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, Messaging_SendToUser_FullMethodName, in, opts)
}

func (c *MessagingClient) SendToService(ctx context.Context, in *SendToServiceRequest, opts ...grpc.CallOption) (*SendToServiceResponse, error) {
	return invoke[SendToServiceResponse](ctx, c.cc, Messaging_SendToService_FullMethodName, in, opts)
}

func (c *MessagingClient) SendToGroup(ctx context.Context, in *SendToGroupRequest, opts ...grpc.CallOption) (*SendToGroupResponse, error) {
	return invoke[SendToGroupResponse](ctx, c.cc, Messaging_SendToGroup_FullMethodName, in, opts)
}

func (c *MessagingClient) CreateGroup(ctx context.Context, in *GroupRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, Messaging_CreateGroup_FullMethodName, in, opts)
}

func (c *MessagingClient) JoinGroup(ctx context.Context, in *GroupRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, Messaging_JoinGroup_FullMethodName, in, opts)
}

func (c *MessagingClient) LeaveGroup(ctx context.Context, in *GroupRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, Messaging_LeaveGroup_FullMethodName, in, opts)
}

func (c *MessagingClient) LoadMessages(ctx context.Context, in *LoadMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, Messaging_LoadMessages_FullMethodName, in, opts)
}

func (c *MessagingClient) LoadUnreadMessages(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, Messaging_LoadUnreadMessages_FullMethodName, in, opts)
}

func (c *MessagingClient) MarkAsRead(ctx context.Context, in *MarkAsReadRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, Messaging_MarkAsRead_FullMethodName, in, opts)
}

func (c *MessagingClient) SearchMessages(ctx context.Context, in *SearchMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, Messaging_SearchMessages_FullMethodName, in, opts)
}

func (c *MessagingClient) Connect(ctx context.Context, in *ConnectRequest, opts ...grpc.CallOption) (Messaging_ConnectClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &Messaging_ServiceDesc.Streams[0], Messaging_Connect_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[ConnectRequest, Event]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
