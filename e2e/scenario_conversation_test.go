package e2e

import (
	"context"
	"courier/domain"
	"courier/infrastructure/grpc/api"
	"courier/infrastructure/grpc/client"
	"testing"

	"github.com/stretchr/testify/suite"
)

type testConversationSuite struct {
	BaseGrpcSuite
}

func TestConversationSuite(t *testing.T) {
	suite.Run(t, &testConversationSuite{})
}

func (s *testConversationSuite) TestDirectMessageThenRead() {
	alice, bob := domain.User(s.Name("alice")), domain.User(s.Name("bob"))
	var sent domain.Message

	s.Run("Step 1: alice writes to bob while bob is offline", func() {
		s.As(bob, func(context.Context, *client.MessagingClient) {})
		s.As(alice, func(ctx context.Context, c *client.MessagingClient) {
			var err error
			sent, err = c.Send(ctx, bob, "hello from the e2e suite")
			s.Require().NoError(err)
		})
	})

	s.Run("Step 2: bob finds it unread, then marks it read", func() {
		c := s.Dial(s.T(), "bob login")
		ctx := context.Background()
		s.Require().NoError(c.Login(ctx, bob, s.Config.Secret))

		unread, err := c.Stub().LoadUnreadMessages(ctx, &api.Empty{})
		s.Require().NoError(err)
		s.Require().Len(unread.Messages, 1)
		s.Require().Equal(sent.ID, unread.Messages[0].ID)

		s.Require().NoError(c.MarkAsRead(ctx, sent.ID.String()))
		unread, err = c.Stub().LoadUnreadMessages(ctx, &api.Empty{})
		s.Require().NoError(err)
		s.Require().Empty(unread.Messages)
	})
}

func (s *testConversationSuite) TestEchoService() {
	s.As(domain.User(s.Name("carol")), func(ctx context.Context, c *client.MessagingClient) {
		reply, err := c.Ask(ctx, "echo", "courier")
		s.Require().NoError(err)
		s.Require().NotNil(reply, "echo processor is not registered on the server")
		s.Require().Equal("reiruoc", reply.Content)
	})
}
