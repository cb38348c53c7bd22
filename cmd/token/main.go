// Command token mints a bearer token signed with the server secret, for
// services and operators that hold no registered credential.
package main

import (
	"courier/auth"
	"courier/domain"
	"courier/internal"
	"flag"
	"fmt"
	"os"
	"time"
)

func main() {
	kind := flag.String("kind", "service", "identity kind: user or service")
	name := flag.String("name", "", "identity name")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to AUTH_TOKEN_DURATION")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := run(*envFile, *kind, *name, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, kind, name string, ttl time.Duration) error {
	config, err := internal.LoadConfig(envFile)
	if err != nil {
		return err
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return err
	}
	if k == domain.KindGroup {
		return fmt.Errorf("groups cannot hold tokens")
	}
	identity, err := domain.NewIdentity(k, name)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = config.AuthTokenDuration
	}
	tokens, err := auth.NewTokenManager(config.AuthSecret, config.AuthIssuer, ttl)
	if err != nil {
		return err
	}
	token, err := tokens.Generate(identity)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
