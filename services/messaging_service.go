package services

import (
	"context"
	"courier/contract"
	"courier/domain"
	"courier/errors"
	"courier/runtime"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultSearchLimit = 20

type IMessagingService interface {
	SendToUser(ctx context.Context, caller domain.Identity, recipient, content string, metadata map[string]any) (domain.Message, error)
	SendToService(ctx context.Context, caller domain.Identity, service, content string, metadata map[string]any) (ServiceResponse, error)
	SendToGroup(ctx context.Context, caller domain.Identity, group, content string, metadata map[string]any) (GroupDelivery, error)
	CreateGroup(caller domain.Identity, group string) error
	JoinGroup(caller domain.Identity, group string) error
	LeaveGroup(caller domain.Identity, group string) error
	LoadMessages(ctx context.Context, caller domain.Identity, inbound bool, from *time.Time) ([]domain.Message, error)
	LoadUnreadMessages(ctx context.Context, caller domain.Identity) ([]domain.Message, error)
	MarkAsRead(ctx context.Context, caller domain.Identity, messageID string) error
	SearchMessages(ctx context.Context, caller domain.Identity, text string, limit int) ([]domain.Message, error)
	Connect(ctx context.Context, caller domain.Identity, session contract.Session) (runtime.ConnectResult, error)
	Disconnect(caller domain.Identity, session contract.Session) bool
}

// ServiceResponse is the outcome of a send to a service.
// Handled is false when the service has no processor.
type ServiceResponse struct {
	Message domain.Message
	Reply   *domain.Message
	Handled bool
}

type GroupDelivery struct {
	Message    domain.Message
	Recipients int
}

// MessagingService is the transport-facing surface of the router. Every call
// acts on behalf of an already resolved caller identity.
type MessagingService struct {
	router *runtime.Router
}

func NewMessagingService(router *runtime.Router) *MessagingService {
	return &MessagingService{router: router}
}

func (s *MessagingService) SendToUser(ctx context.Context, caller domain.Identity, recipient, content string, metadata map[string]any) (domain.Message, error) {
	receipt, err := s.router.Route(ctx, domain.SendCommand{
		Sender:    caller,
		Recipient: domain.User(recipient),
		Content:   content,
		Metadata:  metadata,
	})
	return receipt.Message, err
}

// SendToService returns the processor reply, if any. A processor failure
// still returns the stored message along with the error.
func (s *MessagingService) SendToService(ctx context.Context, caller domain.Identity, service, content string, metadata map[string]any) (ServiceResponse, error) {
	receipt, err := s.router.Route(ctx, domain.SendCommand{
		Sender:    caller,
		Recipient: domain.Service(service),
		Content:   content,
		Metadata:  metadata,
	})
	return ServiceResponse{Message: receipt.Message, Reply: receipt.Reply, Handled: receipt.Handled}, err
}

func (s *MessagingService) SendToGroup(ctx context.Context, caller domain.Identity, group, content string, metadata map[string]any) (GroupDelivery, error) {
	receipt, err := s.router.Route(ctx, domain.SendCommand{
		Sender:    caller,
		Recipient: domain.Group(group),
		Content:   content,
		Metadata:  metadata,
	})
	return GroupDelivery{Message: receipt.Message, Recipients: receipt.Recipients}, err
}

func (s *MessagingService) CreateGroup(caller domain.Identity, group string) error {
	if err := requireUser(caller); err != nil {
		return err
	}
	return s.router.CreateGroup(caller.Name, group)
}

func (s *MessagingService) JoinGroup(caller domain.Identity, group string) error {
	if err := requireUser(caller); err != nil {
		return err
	}
	return s.router.JoinGroup(caller.Name, group)
}

func (s *MessagingService) LeaveGroup(caller domain.Identity, group string) error {
	if err := requireUser(caller); err != nil {
		return err
	}
	return s.router.LeaveGroup(caller.Name, group)
}

func (s *MessagingService) LoadMessages(ctx context.Context, caller domain.Identity, inbound bool, from *time.Time) ([]domain.Message, error) {
	direction := domain.Outbound
	if inbound {
		direction = domain.Inbound
	}
	return s.router.LoadMessages(ctx, domain.MessageQuery{Owner: caller, Direction: direction, From: from})
}

func (s *MessagingService) LoadUnreadMessages(ctx context.Context, caller domain.Identity) ([]domain.Message, error) {
	return s.router.LoadUnread(ctx, caller)
}

func (s *MessagingService) MarkAsRead(ctx context.Context, caller domain.Identity, messageID string) error {
	id, err := uuid.Parse(messageID)
	if err != nil {
		return fmt.Errorf("%w: message id %q", errors.ErrInvalidArgument, messageID)
	}
	return s.router.MarkAsRead(ctx, caller, id)
}

func (s *MessagingService) SearchMessages(ctx context.Context, caller domain.Identity, text string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return s.router.Search(ctx, domain.SearchCommand{Owner: caller, Text: text, Limit: limit})
}

func (s *MessagingService) Connect(ctx context.Context, caller domain.Identity, session contract.Session) (runtime.ConnectResult, error) {
	return s.router.OnConnect(ctx, caller, session)
}

func (s *MessagingService) Disconnect(caller domain.Identity, session contract.Session) bool {
	return s.router.OnDisconnect(caller, session)
}

// requireUser keeps group membership a user concern.
func requireUser(caller domain.Identity) error {
	if caller.Kind != domain.KindUser {
		return fmt.Errorf("%w: only users belong to groups, not %s", errors.ErrForbidden, caller.Kind)
	}
	return nil
}
