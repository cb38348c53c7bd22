package runtime

import (
	"context"
	"courier/domain"
	"courier/errors"
	"courier/infrastructure/storage"
	"courier/mocks"
	"courier/observability"
	"courier/permission"
	"courier/processor"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	router      *Router
	store       *storage.FileStore
	gateway     *permission.Gateway
	processors  *processor.Registry
	connections *ConnectionRegistry
	metrics     *observability.RouterMetrics
}

func setupRouter(t *testing.T) routerFixture {
	log := logs.GetLoggerFromLevel(slog.LevelError)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewFileStore(t.TempDir(), storage.NewLocationIndex(db, log), nil, log)
	require.NoError(t, err)
	gateway := permission.NewGateway(storage.NewGroupRepository(db, log), log)
	processors := processor.NewRegistry(log, 0)
	connections := NewConnectionRegistry(log)
	metrics := observability.NewRouterMetrics(prometheus.NewRegistry())

	return routerFixture{
		router:      NewRouter(log, store, gateway, processors, connections, metrics),
		store:       store,
		gateway:     gateway,
		processors:  processors,
		connections: connections,
		metrics:     metrics,
	}
}

func (f routerFixture) messages(t *testing.T, owner domain.Identity, direction domain.Direction) []domain.Message {
	messages, err := f.store.Query(context.Background(), domain.MessageQuery{Owner: owner, Direction: direction})
	require.NoError(t, err)
	return messages
}

func send(sender, recipient domain.Identity, content string) domain.SendCommand {
	return domain.SendCommand{Sender: sender, Recipient: recipient, Content: content}
}

func TestRouter_UserToUser(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	alice, bob := domain.User("alice"), domain.User("bob")
	bobSession := newFakeSession("bob-1")
	_, err := f.router.OnConnect(ctx, bob, bobSession)
	req.NoError(err)

	// When alice says hi to bob
	receipt, err := f.router.Route(ctx, send(alice, bob, "hi"))

	// Then alice has the outbound copy and bob the inbound one
	req.NoError(err)
	req.Equal(PatternUserToUser, receipt.Pattern)
	day := receipt.Message.Day()
	id := receipt.Message.ID.String() + ".json"
	req.FileExists(filepath.Join(f.store.Root(), "user", "alice", "outbound", day, id))
	req.FileExists(filepath.Join(f.store.Root(), "user", "bob", "inbound", day, id))

	inbound := f.messages(t, bob, domain.Inbound)
	req.Len(inbound, 1)
	req.Equal("hi", inbound[0].Content)
	req.Equal(domain.KindUser, inbound[0].SenderType)
	req.Equal(domain.KindUser, inbound[0].RecipientType)
	req.Len(f.messages(t, alice, domain.Outbound), 1)
	req.Empty(f.messages(t, alice, domain.Inbound))

	// And bob got it live
	events := bobSession.Events()
	req.Len(events, 1)
	req.Equal(domain.MessageReceived{Message: receipt.Message}, events[0])
}

func TestRouter_UserToService_EchoReply(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	alice, echo := domain.User("alice"), domain.Service("echo")
	aliceSession := newFakeSession("alice-1")
	_, err := f.router.OnConnect(ctx, alice, aliceSession)
	req.NoError(err)
	f.processors.Register("echo", processor.Echo{})

	// When alice sends "abc" to echo
	receipt, err := f.router.Route(ctx, send(alice, echo, "abc"))

	// Then alice receives "cba" from the echo service
	req.NoError(err)
	req.True(receipt.Handled)
	req.NotNil(receipt.Reply)
	inbound := f.messages(t, alice, domain.Inbound)
	req.Len(inbound, 1)
	req.Equal("cba", inbound[0].Content)
	req.Equal("echo", inbound[0].SenderID)
	req.Equal(domain.KindService, inbound[0].SenderType)

	// And the service logs hold both directions
	req.Len(f.messages(t, echo, domain.Inbound), 1)
	req.Len(f.messages(t, echo, domain.Outbound), 1)

	events := aliceSession.Events()
	req.Len(events, 1)
	req.Equal("cba", events[0].(domain.MessageReceived).Message.Content)
}

func TestRouter_UserToService_WithoutProcessor(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	alice, echo := domain.User("alice"), domain.Service("echo")
	f.processors.Register("echo", processor.Echo{})
	f.processors.Unregister("echo")

	// When alice sends to an unregistered service
	receipt, err := f.router.Route(ctx, send(alice, echo, "abc"))

	// Then nothing comes back, without error, and the message is still stored
	req.NoError(err)
	req.False(receipt.Handled)
	req.Nil(receipt.Reply)
	req.Empty(f.messages(t, alice, domain.Inbound))
	stored := f.messages(t, echo, domain.Inbound)
	req.Len(stored, 1)
	req.Equal("abc", stored[0].Content)
}

func TestRouter_UserToService_ProcessorFailureKeepsMessage(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	alice, svc := domain.User("alice"), domain.Service("flaky")
	f.processors.Register("flaky", processor.Func(func(context.Context, domain.Message) (*domain.Reply, error) {
		return nil, fmt.Errorf("unavailable")
	}))

	// When the processor fails
	receipt, err := f.router.Route(ctx, send(alice, svc, "abc"))

	// Then the sender gets a processor failure and both copies are stored
	req.ErrorIs(err, errors.ErrProcessorFailure)
	req.Equal("abc", receipt.Message.Content)
	req.Len(f.messages(t, alice, domain.Outbound), 1)
	req.Len(f.messages(t, svc, domain.Inbound), 1)
	req.Empty(f.messages(t, alice, domain.Inbound))
	req.Equal(uint64(1), f.metrics.Snapshot().Failures)
}

func TestRouter_UserToService_HandlerErrorStaysAProcessorFailure(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	alice, svc := domain.User("alice"), domain.Service("strict")
	f.processors.Register("strict", processor.Func(func(context.Context, domain.Message) (*domain.Reply, error) {
		return nil, fmt.Errorf("%w: payload rejected", errors.ErrInvalidArgument)
	}))

	// When the handler rejects the content with an argument error
	_, err := f.router.Route(context.Background(), send(alice, svc, "abc"))

	// Then the sender still sees a processor failure, not an argument error
	req.ErrorIs(err, errors.ErrProcessorFailure)
	req.Equal("processor", failureReason(err))
	req.Len(f.messages(t, svc, domain.Inbound), 1)
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: not a member", errors.ErrForbidden), "forbidden"},
		{errors.ErrInvalidArgument, "invalid_argument"},
		{&errors.ProcessorError{Service: "echo", Cause: errors.ErrInvalidArgument}, "processor"},
		{&errors.ProcessorError{Service: "echo", Cause: errors.ErrForbidden}, "processor"},
		{errors.NewStorageError("write", "x", fmt.Errorf("disk full")), "storage"},
		{fmt.Errorf("boom"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"_"+tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, failureReason(tt.err))
		})
	}
}

func TestRouter_UserToGroup_ForbiddenForNonMember(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	req.NoError(f.gateway.CreateGroup("team", "alice"))
	mallory, team := domain.User("mallory"), domain.Group("team")

	// When a non-member sends to the group
	_, err := f.router.Route(ctx, send(mallory, team, "let me in"))

	// Then it is forbidden and nothing was written anywhere
	req.ErrorIs(err, errors.ErrForbidden)
	entries, err := os.ReadDir(f.store.Root())
	req.NoError(err)
	req.Empty(entries)
}

func TestRouter_UserToGroup_FanOut(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	req.NoError(f.gateway.CreateGroup("team", "alice"))
	req.NoError(f.router.JoinGroup("bob", "team"))
	req.NoError(f.router.JoinGroup("carol", "team"))
	alice, team := domain.User("alice"), domain.Group("team")
	bobSession := newFakeSession("bob-1")
	_, err := f.router.OnConnect(ctx, domain.User("bob"), bobSession)
	req.NoError(err)

	// When alice writes to the group
	receipt, err := f.router.Route(ctx, send(alice, team, "standup"))

	// Then the group logs both directions and every member got one inbound copy
	req.NoError(err)
	req.Equal(3, receipt.Recipients)
	req.Len(f.messages(t, team, domain.Inbound), 1)
	req.Len(f.messages(t, team, domain.Outbound), 1)
	req.Len(f.messages(t, alice, domain.Outbound), 1)
	for _, member := range []string{"alice", "bob", "carol"} {
		inbound := f.messages(t, domain.User(member), domain.Inbound)
		req.Len(inbound, 1, member)
		req.Equal("standup", inbound[0].Content)
		req.Equal("team", inbound[0].RecipientID)
	}

	// And the connected member was pushed a group event
	events := bobSession.Events()
	req.Len(events, 1)
	req.Equal(domain.GroupMessageReceived{Group: "team", Message: receipt.Message}, events[0])

	// And a member leaving afterwards changes nothing for later sends to them
	req.NoError(f.router.LeaveGroup("carol", "team"))
	_, err = f.router.Route(ctx, send(alice, team, "again"))
	req.NoError(err)
	req.Len(f.messages(t, domain.User("carol"), domain.Inbound), 1)
	req.Len(f.messages(t, domain.User("bob"), domain.Inbound), 2)
}

func TestRouter_FanOut_UsesMembershipSnapshot(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	gateway := mocks.NewMockIPermissionGateway(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	router := NewRouter(log, store, gateway, processor.NewRegistry(log, 0), NewConnectionRegistry(log),
		observability.NewRouterMetrics(prometheus.NewRegistry()))
	team := domain.Group("team")

	var mu sync.Mutex
	written := map[domain.Identity]int{}
	store.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, owner domain.Identity, _ domain.Direction, _ domain.Message) error {
			mu.Lock()
			defer mu.Unlock()
			written[owner]++
			return nil
		}).AnyTimes()

	// Given the membership sampled at send time holds alice and bob
	gateway.EXPECT().IsMember("alice", "team").Return(true).Times(1)
	gateway.EXPECT().MembersOf("team").Return([]string{"alice", "bob"}).Times(1)

	// When alice sends
	receipt, err := router.Route(context.Background(), send(domain.User("alice"), team, "hello"))

	// Then only the sampled members got a copy and the membership was read once
	req.NoError(err)
	req.Equal(2, receipt.Recipients)
	req.Equal(2, written[domain.User("alice")])
	req.Equal(1, written[domain.User("bob")])
	req.Equal(2, written[team])
}

func TestRouter_FanOut_MemberFailureDoesNotStopOthers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mocks.NewMockIMessageStore(ctrl)
	gateway := mocks.NewMockIPermissionGateway(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	router := NewRouter(log, store, gateway, processor.NewRegistry(log, 0), NewConnectionRegistry(log),
		observability.NewRouterMetrics(prometheus.NewRegistry()))
	team := domain.Group("team")
	failure := &errors.StorageError{Op: "write", Path: "bob", Cause: fmt.Errorf("disk full")}

	gateway.EXPECT().MembersOf("team").Return([]string{"alice", "bob", "carol"}).Times(1)
	store.EXPECT().Append(gomock.Any(), domain.User("bob"), domain.Inbound, gomock.Any()).Return(failure).Times(1)
	store.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(5)

	// When a service posts to the group and one member append fails
	receipt, err := router.Route(context.Background(), send(domain.Service("alerts"), team, "deploy"))

	// Then the failure is reported and the other members still got their copy
	req.ErrorIs(err, errors.ErrStorageFailure)
	req.Equal(2, receipt.Recipients)
}

func TestRouter_ServiceToUser(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	alerts, bob := domain.Service("alerts"), domain.User("bob")

	receipt, err := f.router.Route(ctx, send(alerts, bob, "disk almost full"))

	req.NoError(err)
	req.Equal(PatternServiceToUser, receipt.Pattern)
	req.Len(f.messages(t, alerts, domain.Outbound), 1)
	inbound := f.messages(t, bob, domain.Inbound)
	req.Len(inbound, 1)
	req.Equal(domain.KindService, inbound[0].SenderType)
}

func TestRouter_ServiceToGroup_NeedsNoMembership(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	req.NoError(f.gateway.CreateGroup("ops", "alice"))

	receipt, err := f.router.Route(ctx, send(domain.Service("alerts"), domain.Group("ops"), "paging"))

	req.NoError(err)
	req.Equal(PatternServiceToGroup, receipt.Pattern)
	req.Equal(1, receipt.Recipients)
	req.Len(f.messages(t, domain.User("alice"), domain.Inbound), 1)
}

func TestRouter_RejectsUnroutablePairsAndBadArguments(t *testing.T) {
	f := setupRouter(t)
	tests := []struct {
		name string
		cmd  domain.SendCommand
	}{
		{"group sender", send(domain.Group("team"), domain.User("bob"), "hi")},
		{"service to service", send(domain.Service("a"), domain.Service("b"), "hi")},
		{"empty content", send(domain.User("alice"), domain.User("bob"), "")},
		{"missing recipient", send(domain.User("alice"), domain.Identity{}, "hi")},
		{"unsafe name", send(domain.User("alice"), domain.User("../bob"), "hi")},
		{"name over the byte cap", send(domain.User("alice"), domain.User(strings.Repeat("😀", 33)), "hi")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.router.Route(context.Background(), tt.cmd)
			require.ErrorIs(t, err, errors.ErrInvalidArgument)
		})
	}
	entries, err := os.ReadDir(f.store.Root())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRouter_DeliveryFailureIsSwallowed(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	bob := domain.User("bob")
	broken := newFakeSession("bob-stale")
	broken.err = fmt.Errorf("stream closed")
	f.connections.Bind(bob, broken)

	_, err := f.router.Route(ctx, send(domain.User("alice"), bob, "hi"))

	req.NoError(err)
	req.Len(f.messages(t, bob, domain.Inbound), 1)
	req.Equal(uint64(1), f.metrics.Snapshot().DeliveryDropped)
}

func TestRouter_OnConnect_DeliversUnread(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	alice, bob := domain.User("alice"), domain.User("bob")
	req.NoError(f.gateway.CreateGroup("team", "alice"))
	req.NoError(f.router.JoinGroup("bob", "team"))

	// Given bob received messages while offline and read one of them
	first, err := f.router.Route(ctx, send(alice, bob, "one"))
	req.NoError(err)
	_, err = f.router.Route(ctx, send(alice, bob, "two"))
	req.NoError(err)
	_, err = f.router.Route(ctx, send(alice, domain.Group("team"), "three"))
	req.NoError(err)
	req.NoError(f.router.MarkAsRead(ctx, bob, first.Message.ID))

	// When bob connects
	session := newFakeSession("bob-1")
	result, err := f.router.OnConnect(ctx, bob, session)

	// Then the unread ones are pushed, oldest first, and bob's groups are known
	req.NoError(err)
	req.False(result.Replaced)
	req.Equal([]string{"team"}, result.Groups)
	req.Equal(2, result.Delivered)
	events := session.Events()
	req.Len(events, 2)
	req.Equal("two", events[0].(domain.MessageReceived).Message.Content)
	req.Equal("three", events[1].(domain.GroupMessageReceived).Message.Content)

	// And connecting does not mark anything read
	unread, err := f.router.LoadUnread(ctx, bob)
	req.NoError(err)
	req.Len(unread, 2)
}

func TestRouter_Reconnect_StaleDisconnectIsIgnored(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	bob := domain.User("bob")
	old, fresh := newFakeSession("old"), newFakeSession("fresh")

	_, err := f.router.OnConnect(ctx, bob, old)
	req.NoError(err)
	result, err := f.router.OnConnect(ctx, bob, fresh)
	req.NoError(err)
	req.True(result.Replaced)
	req.True(old.Closed())
	req.False(fresh.Closed())

	// When the old connection finally closes
	req.False(f.router.OnDisconnect(bob, old))

	// Then messages still reach the fresh session
	_, err = f.router.Route(ctx, send(domain.User("alice"), bob, "hi"))
	req.NoError(err)
	req.Len(fresh.Events(), 1)
	req.Empty(old.Events())
	req.Equal(int64(1), f.metrics.Snapshot().Sessions)

	req.True(f.router.OnDisconnect(bob, fresh))
	req.Equal(int64(0), f.metrics.Snapshot().Sessions)
}

func TestRouter_MarkAsRead(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	bob := domain.User("bob")
	receipt, err := f.router.Route(ctx, send(domain.User("alice"), bob, "hi"))
	req.NoError(err)

	// Marking twice succeeds and leaves the flag set
	req.NoError(f.router.MarkAsRead(ctx, bob, receipt.Message.ID))
	req.NoError(f.router.MarkAsRead(ctx, bob, receipt.Message.ID))

	inbound := f.messages(t, bob, domain.Inbound)
	req.True(inbound[0].IsRead)
	hasUnread, err := f.store.HasUnread(ctx, bob)
	req.NoError(err)
	req.False(hasUnread)

	// The sender's copy is untouched
	req.False(f.messages(t, domain.User("alice"), domain.Outbound)[0].IsRead)

	// Unknown identifiers are reported
	req.ErrorIs(f.router.MarkAsRead(ctx, bob, domain.NewMessage(bob, bob, "x", nil).ID), errors.ErrNotFound)
}

func TestRouter_ConcurrentSenders(t *testing.T) {
	req := require.New(t)
	f := setupRouter(t)
	ctx := context.Background()
	bob := domain.User("bob")
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := domain.User(fmt.Sprintf("user-%d", i))
			_, err := f.router.Route(ctx, send(sender, bob, fmt.Sprintf("msg-%d", i)))
			req.NoError(err)
		}(i)
	}
	wg.Wait()

	req.Len(f.messages(t, bob, domain.Inbound), 20)
}

func TestPatterns_CoverEveryRoute(t *testing.T) {
	req := require.New(t)
	patterns := Patterns()

	req.Len(patterns, 5)
	req.Equal([2]domain.Kind{domain.KindUser, domain.KindGroup}, patterns[PatternUserToGroup])
	req.Equal([2]domain.Kind{domain.KindService, domain.KindUser}, patterns[PatternServiceToUser])
}
