package processor

import (
	"context"
	"courier/domain"
	"courier/errors"
	"courier/mocks"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMessage(content string) domain.Message {
	return domain.NewMessage(domain.User("alice"), domain.Service("echo"), content, nil)
}

func TestRegistry_Invoke_NoProcessorIsNotAFailure(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)

	outcome, err := registry.Invoke(context.Background(), "nobody", newMessage("abc"))

	req.NoError(err)
	req.False(outcome.Handled)
	req.Nil(outcome.Reply)
}

func TestRegistry_Invoke_HandledWithoutReply(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	processorMock := mocks.NewMockProcessor(ctrl)
	registry := NewRegistry(slog.Default(), 0)

	// Given a processor that answers nothing
	processorMock.EXPECT().Process(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	registry.Register("silent", processorMock)

	// When it is invoked
	outcome, err := registry.Invoke(context.Background(), "silent", newMessage("abc"))

	// Then the message was handled and nothing comes back
	req.NoError(err)
	req.True(outcome.Handled)
	req.Nil(outcome.Reply)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)

	registry.Register("svc", Func(func(context.Context, domain.Message) (*domain.Reply, error) {
		return &domain.Reply{Content: "first"}, nil
	}))
	registry.Register("svc", Func(func(context.Context, domain.Message) (*domain.Reply, error) {
		return &domain.Reply{Content: "second"}, nil
	}))

	outcome, err := registry.Invoke(context.Background(), "svc", newMessage("abc"))
	req.NoError(err)
	req.Equal("second", outcome.Reply.Content)
	req.Equal([]string{"svc"}, registry.List())
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	registry.Register(EchoService, Echo{})

	req.True(registry.Unregister(EchoService))
	req.False(registry.Unregister(EchoService))

	outcome, err := registry.Invoke(context.Background(), EchoService, newMessage("abc"))
	req.NoError(err)
	req.False(outcome.Handled)
	req.Empty(registry.List())
}

func TestRegistry_Invoke_ErrorBecomesProcessorFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	processorMock := mocks.NewMockProcessor(ctrl)
	registry := NewRegistry(slog.Default(), 0)
	cause := fmt.Errorf("backend down")

	processorMock.EXPECT().Process(gomock.Any(), gomock.Any()).Return(nil, cause).Times(1)
	registry.Register("broken", processorMock)

	_, err := registry.Invoke(context.Background(), "broken", newMessage("abc"))

	req.ErrorIs(err, errors.ErrProcessorFailure)
	req.ErrorIs(err, cause)
	var processorErr *errors.ProcessorError
	req.True(errors.As(err, &processorErr))
	req.Equal("broken", processorErr.Service)
}

func TestRegistry_Invoke_RecoversPanic(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	registry.Register("panicky", Func(func(context.Context, domain.Message) (*domain.Reply, error) {
		panic("boom")
	}))

	outcome, err := registry.Invoke(context.Background(), "panicky", newMessage("abc"))

	req.ErrorIs(err, errors.ErrProcessorFailure)
	req.Nil(outcome.Reply)
}

func TestRegistry_Invoke_Timeout(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 20*time.Millisecond)
	registry.Register("slow", Func(func(ctx context.Context, _ domain.Message) (*domain.Reply, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	_, err := registry.Invoke(context.Background(), "slow", newMessage("abc"))

	req.ErrorIs(err, errors.ErrProcessorFailure)
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestRegistry_Invoke_DoesNotHoldLock(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	entered := make(chan struct{})
	release := make(chan struct{})
	registry.Register("blocking", Func(func(context.Context, domain.Message) (*domain.Reply, error) {
		close(entered)
		<-release
		return nil, nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = registry.Invoke(context.Background(), "blocking", newMessage("abc"))
	}()
	<-entered

	// Given a processor still running, the registry accepts writes
	registered := make(chan struct{})
	go func() {
		registry.Register(EchoService, Echo{})
		close(registered)
	}()

	select {
	case <-registered:
	case <-time.After(time.Second):
		req.Fail("registry is locked during processor invocation")
	}
	close(release)
	<-done
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 0)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Register(fmt.Sprintf("svc-%d", i%5), Echo{})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := registry.Invoke(context.Background(), fmt.Sprintf("svc-%d", i%5), newMessage("abc"))
			req.NoError(err)
		}(i)
	}
	wg.Wait()

	req.Len(registry.List(), 5)
}
