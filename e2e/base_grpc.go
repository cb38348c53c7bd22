// Package e2e drives a live courier server over gRPC.
package e2e

import (
	"context"
	"courier/domain"
	"courier/infrastructure/grpc/client"
	"courier/internal/jsoncodec"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

type BaseGrpcSuite struct {
	suite.Suite
	Config Config
	// run keeps identities unique across runs against the same server
	run string
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseGrpcSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.CourierAddr == "" {
		s.T().Skip("COURIER_ADDR is not set")
	}
	s.run = fmt.Sprintf("%d", time.Now().UnixNano())
}

// Name suffixes base with the run marker.
func (s *BaseGrpcSuite) Name(base string) string {
	return base + "-" + s.run
}

// Dial connects with a unary interceptor that logs every call, and its
// JSON bodies when E2E_DEBUG_JSON is enabled.
func (s *BaseGrpcSuite) Dial(t *testing.T, name string) *client.MessagingClient {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	c, err := client.Dial(s.Config.CourierAddr,
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, indent(req))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, indent(reply))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.CourierAddr)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// As registers identity and returns a client acting on its behalf.
func (s *BaseGrpcSuite) As(identity domain.Identity, fn func(ctx context.Context, c *client.MessagingClient)) {
	c := s.Dial(s.T(), identity.String())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(c.Register(ctx, identity, s.Config.Secret))
	fn(ctx, c)
}

func indent(v any) string {
	data, err := jsoncodec.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
