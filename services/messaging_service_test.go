package services

import (
	"context"
	"courier/domain"
	"courier/errors"
	"courier/infrastructure/storage"
	"courier/observability"
	"courier/permission"
	"courier/processor"
	"courier/runtime"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	id     string
	events chan domain.Event
}

func (s *recordingSession) ID() string { return s.id }

func (s *recordingSession) Deliver(_ context.Context, e domain.Event) error {
	s.events <- e
	return nil
}

func setupMessagingService(t *testing.T, withSearch bool) *MessagingService {
	log := slog.Default()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var search *storage.SearchIndex
	if withSearch {
		search, err = storage.OpenSearchIndex("", log)
		require.NoError(t, err)
		t.Cleanup(func() { search.Close() })
	}
	store, err := storage.NewFileStore(t.TempDir(), storage.NewLocationIndex(db, log), search, log)
	require.NoError(t, err)

	registry := processor.NewRegistry(log, time.Second)
	require.NoError(t, processor.RegisterBuiltins(registry, []string{processor.EchoService}, '*'))

	router := runtime.NewRouter(log, store,
		permission.NewGateway(storage.NewGroupRepository(db, log), log),
		registry, runtime.NewConnectionRegistry(log),
		observability.NewRouterMetrics(prometheus.NewRegistry()))
	return NewMessagingService(router)
}

func TestMessagingService_Conversation(t *testing.T) {
	req := require.New(t)
	service := setupMessagingService(t, false)
	ctx := context.Background()
	alice, bob := domain.User("alice"), domain.User("bob")
	bobSession := &recordingSession{id: "bob-1", events: make(chan domain.Event, 10)}

	_, err := service.Connect(ctx, bob, bobSession)
	req.NoError(err)

	// When alice writes to bob
	sent, err := service.SendToUser(ctx, alice, "bob", "hi", nil)
	req.NoError(err)

	// Then bob is pushed the message and finds it unread
	evt := <-bobSession.events
	req.Equal(sent.ID, evt.(domain.MessageReceived).Message.ID)
	unread, err := service.LoadUnreadMessages(ctx, bob)
	req.NoError(err)
	req.Len(unread, 1)

	// When bob reads it
	req.NoError(service.MarkAsRead(ctx, bob, sent.ID.String()))

	// Then nothing is unread, and the history is still there
	unread, err = service.LoadUnreadMessages(ctx, bob)
	req.NoError(err)
	req.Empty(unread)
	history, err := service.LoadMessages(ctx, bob, true, nil)
	req.NoError(err)
	req.Len(history, 1)
	sentLog, err := service.LoadMessages(ctx, alice, false, nil)
	req.NoError(err)
	req.Len(sentLog, 1)

	req.True(service.Disconnect(bob, bobSession))
}

func TestMessagingService_SendToService(t *testing.T) {
	req := require.New(t)
	service := setupMessagingService(t, false)
	ctx := context.Background()

	response, err := service.SendToService(ctx, domain.User("alice"), "echo", "abc", nil)
	req.NoError(err)
	req.True(response.Handled)
	req.Equal("cba", response.Reply.Content)

	response, err = service.SendToService(ctx, domain.User("alice"), "nobody", "abc", nil)
	req.NoError(err)
	req.False(response.Handled)
	req.Nil(response.Reply)
}

func TestMessagingService_Groups(t *testing.T) {
	req := require.New(t)
	service := setupMessagingService(t, false)
	ctx := context.Background()
	alice, bob := domain.User("alice"), domain.User("bob")

	req.NoError(service.CreateGroup(alice, "team"))
	_, err := service.SendToGroup(ctx, bob, "team", "hello?", nil)
	req.ErrorIs(err, errors.ErrForbidden)

	req.NoError(service.JoinGroup(bob, "team"))
	delivery, err := service.SendToGroup(ctx, bob, "team", "hello", nil)
	req.NoError(err)
	req.Equal(2, delivery.Recipients)

	req.NoError(service.LeaveGroup(bob, "team"))
	_, err = service.SendToGroup(ctx, bob, "team", "bye", nil)
	req.ErrorIs(err, errors.ErrForbidden)

	// Services do not join groups
	req.ErrorIs(service.JoinGroup(domain.Service("echo"), "team"), errors.ErrForbidden)
}

func TestMessagingService_LoadMessages_FromDate(t *testing.T) {
	req := require.New(t)
	service := setupMessagingService(t, false)
	ctx := context.Background()
	_, err := service.SendToUser(ctx, domain.User("alice"), "bob", "today", nil)
	req.NoError(err)

	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	messages, err := service.LoadMessages(ctx, domain.User("bob"), true, &tomorrow)
	req.NoError(err)
	req.Empty(messages)

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	messages, err = service.LoadMessages(ctx, domain.User("bob"), true, &yesterday)
	req.NoError(err)
	req.Len(messages, 1)
}

func TestMessagingService_MarkAsRead_BadIdentifier(t *testing.T) {
	req := require.New(t)
	service := setupMessagingService(t, false)

	err := service.MarkAsRead(context.Background(), domain.User("bob"), "not-a-uuid")

	req.ErrorIs(err, errors.ErrInvalidArgument)
}

func TestMessagingService_SearchMessages(t *testing.T) {
	req := require.New(t)
	service := setupMessagingService(t, true)
	ctx := context.Background()
	alice := domain.User("alice")

	_, err := service.SendToUser(ctx, alice, "bob", "the deployment finished", nil)
	req.NoError(err)
	_, err = service.SendToUser(ctx, alice, "bob", "lunch at noon", nil)
	req.NoError(err)

	found, err := service.SearchMessages(ctx, domain.User("bob"), "deployment", 0)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal("the deployment finished", found[0].Content)

	// Alice's search only sees the copies alice owns
	found, err = service.SearchMessages(ctx, alice, "lunch", 10)
	req.NoError(err)
	req.Len(found, 1)
}
