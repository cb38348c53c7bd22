package server

import (
	"context"
	"courier/auth"
	"courier/domain"
	"courier/errors"
	"courier/infrastructure/grpc/api"
	"courier/services"
	"courier/sink"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type MessagingServer struct {
	messaging            services.IMessagingService
	authentication       services.IAuthService
	connectionBufferSize int
	deliveryTimeout      time.Duration
	log                  *slog.Logger
}

func NewMessagingServer(log *slog.Logger, messaging services.IMessagingService, authentication services.IAuthService,
	connectionBufferSize int, deliveryTimeout time.Duration) *MessagingServer {
	return &MessagingServer{
		messaging:            messaging,
		authentication:       authentication,
		connectionBufferSize: connectionBufferSize,
		deliveryTimeout:      deliveryTimeout,
		log:                  log,
	}
}

func (s *MessagingServer) Register(_ context.Context, req *api.CredentialRequest) (*api.TokenResponse, error) {
	token, err := s.authentication.Register(domain.Identity{Kind: req.Kind, Name: req.Name}, req.Secret)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.TokenResponse{Token: token.String()}, nil
}

func (s *MessagingServer) Login(_ context.Context, req *api.CredentialRequest) (*api.TokenResponse, error) {
	token, err := s.authentication.Login(domain.Identity{Kind: req.Kind, Name: req.Name}, req.Secret)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.TokenResponse{Token: token.String()}, nil
}

func (s *MessagingServer) SendToUser(ctx context.Context, req *api.SendToUserRequest) (*api.SendResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	message, err := s.messaging.SendToUser(ctx, caller, req.Recipient, req.Content, req.Metadata)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.SendResponse{Message: message}, nil
}

// SendToService reports a processor failure as an error even though the
// message itself was stored.
func (s *MessagingServer) SendToService(ctx context.Context, req *api.SendToServiceRequest) (*api.SendToServiceResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	response, err := s.messaging.SendToService(ctx, caller, req.Service, req.Content, req.Metadata)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.SendToServiceResponse{Message: response.Message, Reply: response.Reply, Handled: response.Handled}, nil
}

func (s *MessagingServer) SendToGroup(ctx context.Context, req *api.SendToGroupRequest) (*api.SendToGroupResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	delivery, err := s.messaging.SendToGroup(ctx, caller, req.Group, req.Content, req.Metadata)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.SendToGroupResponse{Message: delivery.Message, Recipients: delivery.Recipients}, nil
}

func (s *MessagingServer) CreateGroup(ctx context.Context, req *api.GroupRequest) (*api.Empty, error) {
	return s.membership(ctx, req.Group, s.messaging.CreateGroup)
}

func (s *MessagingServer) JoinGroup(ctx context.Context, req *api.GroupRequest) (*api.Empty, error) {
	return s.membership(ctx, req.Group, s.messaging.JoinGroup)
}

func (s *MessagingServer) LeaveGroup(ctx context.Context, req *api.GroupRequest) (*api.Empty, error) {
	return s.membership(ctx, req.Group, s.messaging.LeaveGroup)
}

func (s *MessagingServer) membership(ctx context.Context, group string, change func(domain.Identity, string) error) (*api.Empty, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	if err := change(caller, group); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.Empty{}, nil
}

func (s *MessagingServer) LoadMessages(ctx context.Context, req *api.LoadMessagesRequest) (*api.MessagesResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.messaging.LoadMessages(ctx, caller, req.Inbound, req.From)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.MessagesResponse{Messages: messages}, nil
}

func (s *MessagingServer) LoadUnreadMessages(ctx context.Context, _ *api.Empty) (*api.MessagesResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.messaging.LoadUnreadMessages(ctx, caller)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.MessagesResponse{Messages: messages}, nil
}

func (s *MessagingServer) MarkAsRead(ctx context.Context, req *api.MarkAsReadRequest) (*api.Empty, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.messaging.MarkAsRead(ctx, caller, req.MessageID); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.Empty{}, nil
}

func (s *MessagingServer) SearchMessages(ctx context.Context, req *api.SearchMessagesRequest) (*api.MessagesResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.messaging.SearchMessages(ctx, caller, req.Text, req.Limit)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.MessagesResponse{Messages: messages}, nil
}

// Connect binds a stream session to the caller and blocks until the client
// goes away. Unread messages arrive first, then live traffic.
// A newer Connect for the same identity takes over; this one then ends.
func (s *MessagingServer) Connect(_ *api.ConnectRequest, stream api.Messaging_ConnectServer) error {
	ctx := stream.Context()
	caller, err := callerOf(ctx)
	if err != nil {
		return err
	}

	session := sink.NewStreamSession(s.connectionBufferSize, s.deliveryTimeout)
	defer session.Close()

	// Drain while OnConnect pushes the backlog, a backlog larger than the
	// buffer would otherwise time out.
	sendErr := make(chan error, 1)
	go func() { sendErr <- s.forward(ctx, caller, session, stream) }()

	result, err := s.messaging.Connect(ctx, caller, session)
	defer s.messaging.Disconnect(caller, session)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	s.log.Debug("Stream attached", "identity", caller.String(), "session", session.ID(),
		"replaced", result.Replaced, "unread", result.Delivered)

	return <-sendErr
}

func (s *MessagingServer) forward(ctx context.Context, caller domain.Identity, session *sink.StreamSession, stream api.Messaging_ConnectServer) error {
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Client disconnected", "identity", caller.String(), "session", session.ID())
			return nil
		case <-session.Done():
			return nil
		case evt := <-session.Events():
			wire := api.ToEvent(evt)
			if err := stream.Send(&wire); err != nil {
				s.log.Error("Failed to push event to stream",
					"identity", caller.String(),
					"session", session.ID(),
					"error", err)
				return err
			}
		}
	}
}

func callerOf(ctx context.Context) (domain.Identity, error) {
	caller, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return domain.Identity{}, status.Error(codes.Unauthenticated, "caller identity is missing")
	}
	return caller, nil
}
