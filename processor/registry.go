// Package processor holds the runtime-pluggable message handlers of services.
package processor

import (
	"context"
	"courier/contract"
	"courier/domain"
	"courier/errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Func adapts an ordinary function to the contract.Processor interface.
type Func func(ctx context.Context, message domain.Message) (*domain.Reply, error)

func (f Func) Process(ctx context.Context, message domain.Message) (*domain.Reply, error) {
	return f(ctx, message)
}

// Registry maps service names to processors. At most one processor per
// service; the last registration wins.
type Registry struct {
	mu         sync.RWMutex
	log        *slog.Logger
	processors map[string]contract.Processor
	timeout    time.Duration
}

// NewRegistry creates an empty registry. A positive timeout bounds every invocation.
func NewRegistry(log *slog.Logger, timeout time.Duration) *Registry {
	return &Registry{
		log:        log,
		processors: make(map[string]contract.Processor),
		timeout:    timeout,
	}
}

func (r *Registry) Register(service string, processor contract.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.processors[service]
	r.processors[service] = processor
	r.log.Info("Processor registered", "service", service, "replaced", replaced)
}

// Unregister reports whether a processor was registered.
func (r *Registry) Unregister(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processors[service]
	delete(r.processors, service)
	if ok {
		r.log.Info("Processor unregistered", "service", service)
	}
	return ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.processors)
	sort.Strings(names)
	return names
}

// Invoke runs the service's processor without holding the registry lock.
// Without a processor the outcome is not handled and there is no error.
// Errors and panics of the processor come back as *errors.ProcessorError.
func (r *Registry) Invoke(ctx context.Context, service string, message domain.Message) (domain.ProcessorOutcome, error) {
	r.mu.RLock()
	processor, ok := r.processors[service]
	r.mu.RUnlock()
	if !ok {
		return domain.ProcessorOutcome{}, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	reply, err := safeProcess(ctx, processor, message)
	if err != nil {
		r.log.Warn("Processor failed", "service", service, "message_id", message.ID, "error", err)
		return domain.ProcessorOutcome{Handled: true}, &errors.ProcessorError{Service: service, Cause: err}
	}
	return domain.ProcessorOutcome{Handled: true, Reply: reply}, nil
}

func safeProcess(ctx context.Context, processor contract.Processor, message domain.Message) (reply *domain.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return processor.Process(ctx, message)
}
