package workers

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
)

// GRPCServerWorker serves the messaging API until its context ends.
type GRPCServerWorker struct {
	log     *slog.Logger
	server  *grpc.Server
	address string
	listen  func(network, address string) (net.Listener, error)
}

func NewGRPCServerWorker(log *slog.Logger, server *grpc.Server, address string) *GRPCServerWorker {
	return &GRPCServerWorker{log: log, server: server, address: address, listen: net.Listen}
}

func (w *GRPCServerWorker) Run(ctx context.Context) error {
	listener, err := w.listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			w.log.Info("Stopping gRPC server", "address", w.address)
			w.shutdown()
		case <-stopped:
		}
	}()

	w.log.Info("Starting gRPC server", "address", w.address)
	for name := range w.server.GetServiceInfo() {
		w.log.Debug("gRPC exposed service", "name", name)
	}
	if err := w.server.Serve(listener); err != nil && !stdErrors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// shutdown drains unary calls. Connect streams only end with their client,
// so they are cut once shutdownTimeout is over.
func (w *GRPCServerWorker) shutdown() {
	drained := make(chan struct{})
	go func() {
		w.server.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownTimeout):
		w.log.Warn("Graceful stop timed out, closing open streams", "address", w.address)
		w.server.Stop()
	}
}
