package main

import (
	"context"
	"courier/domain"
	"courier/infrastructure/grpc/client"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"COURIER_ADDR,default=localhost:50051"`
	Kind          string `env:"COURIER_KIND,default=user"`
	Name          string `env:"COURIER_NAME,required=true"`
	Secret        string `env:"COURIER_SECRET,required=true"`
	Register      bool   `env:"COURIER_REGISTER,default=false"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run sends one message when -to is given, otherwise it listens until Ctrl+C.
func run() (int, error) {
	to := flag.String("to", "", "recipient as kind/name, e.g. user/bob or service/echo")
	text := flag.String("m", "", "message content")
	flag.Parse()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	kind, err := domain.ParseKind(config.Kind)
	if err != nil {
		return exitConfig, err
	}
	me, err := domain.NewIdentity(kind, config.Name)
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(config.ServerAddress)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = c.Close()
	}()

	if config.Register {
		err = c.Register(ctx, me, config.Secret)
	} else {
		err = c.Login(ctx, me, config.Secret)
	}
	if err != nil {
		return exitRuntime, fmt.Errorf("authentication failed: %w", err)
	}

	if *to != "" {
		return send(ctx, c, *to, *text)
	}

	stream, err := c.Subscribe(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open stream: %w", err)
	}
	log.Info("Connected, listening (Ctrl+C to quit)", "address", config.ServerAddress, "identity", me.String())

	for {
		evt, err := stream.Recv()
		if err != nil {
			// Normal exit if the user triggered a shutdown.
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("stream error: %w", err)
		}
		msg := evt.Message
		room := ""
		if evt.Group != "" {
			room = "#" + evt.Group + " "
		}
		fmt.Printf("[%s] %s%s: %s\n", msg.Timestamp.Local().Format(time.TimeOnly), room, msg.Sender(), msg.Content)
	}
}

func send(ctx context.Context, c *client.MessagingClient, to, text string) (int, error) {
	kind, name, ok := strings.Cut(to, "/")
	if !ok {
		return exitConfig, fmt.Errorf("recipient must look like kind/name, got %q", to)
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return exitConfig, err
	}
	recipient := domain.Identity{Kind: k, Name: name}

	if k == domain.KindService {
		reply, err := c.Ask(ctx, name, text)
		if err != nil {
			return exitRuntime, err
		}
		if reply != nil {
			fmt.Printf("%s: %s\n", recipient, reply.Content)
		}
		return exitOK, nil
	}
	message, err := c.Send(ctx, recipient, text)
	if err != nil {
		return exitRuntime, err
	}
	fmt.Printf("sent %s to %s\n", message.ID, recipient)
	return exitOK, nil
}
