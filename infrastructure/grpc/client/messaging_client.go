// Package client dials a courier server and keeps the caller's bearer token.
package client

import (
	"context"
	"courier/domain"
	"courier/errors"
	"courier/infrastructure/grpc/api"
	"courier/projection"
	"fmt"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// bearer attaches the last obtained token to every call.
type bearer struct {
	mu    sync.RWMutex
	token string
}

func (b *bearer) set(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

func (b *bearer) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.token == "" {
		return map[string]string{}, nil
	}
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b *bearer) RequireTransportSecurity() bool { return false }

type MessagingClient struct {
	conn   *grpc.ClientConn
	stub   *api.MessagingClient
	bearer *bearer
}

// Dial opens a plaintext connection. Extra options come after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*MessagingClient, error) {
	b := &bearer{}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(b),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &MessagingClient{conn: conn, stub: api.NewMessagingClient(conn), bearer: b}, nil
}

// UseToken makes later calls act as the token's identity.
func (c *MessagingClient) UseToken(token string) {
	c.bearer.set(token)
}

func (c *MessagingClient) Register(ctx context.Context, identity domain.Identity, secret string) error {
	res, err := c.stub.Register(ctx, &api.CredentialRequest{Kind: identity.Kind, Name: identity.Name, Secret: secret})
	if err != nil {
		return err
	}
	c.UseToken(res.Token)
	return nil
}

func (c *MessagingClient) Login(ctx context.Context, identity domain.Identity, secret string) error {
	res, err := c.stub.Login(ctx, &api.CredentialRequest{Kind: identity.Kind, Name: identity.Name, Secret: secret})
	if err != nil {
		return err
	}
	c.UseToken(res.Token)
	return nil
}

// Send picks the RPC matching the recipient kind.
func (c *MessagingClient) Send(ctx context.Context, recipient domain.Identity, content string) (domain.Message, error) {
	switch recipient.Kind {
	case domain.KindUser:
		res, err := c.stub.SendToUser(ctx, &api.SendToUserRequest{Recipient: recipient.Name, Content: content})
		if err != nil {
			return domain.Message{}, err
		}
		return res.Message, nil
	case domain.KindService:
		res, err := c.stub.SendToService(ctx, &api.SendToServiceRequest{Service: recipient.Name, Content: content})
		if err != nil {
			return domain.Message{}, err
		}
		return res.Message, nil
	case domain.KindGroup:
		res, err := c.stub.SendToGroup(ctx, &api.SendToGroupRequest{Group: recipient.Name, Content: content})
		if err != nil {
			return domain.Message{}, err
		}
		return res.Message, nil
	default:
		return domain.Message{}, fmt.Errorf("%w: recipient kind %q", errors.ErrInvalidArgument, recipient.Kind)
	}
}

// Ask sends content to a service and returns its reply, nil when it had none.
func (c *MessagingClient) Ask(ctx context.Context, service, content string) (*domain.Message, error) {
	res, err := c.stub.SendToService(ctx, &api.SendToServiceRequest{Service: service, Content: content})
	if err != nil {
		return nil, err
	}
	return res.Reply, nil
}

func (c *MessagingClient) JoinGroup(ctx context.Context, group string) error {
	_, err := c.stub.JoinGroup(ctx, &api.GroupRequest{Group: group})
	return err
}

func (c *MessagingClient) Inbox(ctx context.Context) ([]domain.Message, error) {
	res, err := c.stub.LoadMessages(ctx, &api.LoadMessagesRequest{Inbound: true})
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *MessagingClient) MarkAsRead(ctx context.Context, id string) error {
	_, err := c.stub.MarkAsRead(ctx, &api.MarkAsReadRequest{MessageID: id})
	return err
}

// Stub exposes every RPC for callers needing more than the helpers.
func (c *MessagingClient) Stub() *api.MessagingClient {
	return c.stub
}

// Subscribe returns the live event stream. It ends when ctx is cancelled.
func (c *MessagingClient) Subscribe(ctx context.Context) (api.Messaging_ConnectClient, error) {
	return c.stub.Connect(ctx, &api.ConnectRequest{})
}

// Follow feeds every pushed message into timeline until the stream ends.
// A cancelled ctx is a normal end.
func (c *MessagingClient) Follow(ctx context.Context, timeline *projection.Timeline) error {
	stream, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		timeline.Consume(evt.Domain())
	}
}

func (c *MessagingClient) Close() error {
	return c.conn.Close()
}
