package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// COURIER_ADDR points at a running server; the suites skip when it is empty
	CourierAddr string `envconfig:"COURIER_ADDR"`
	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_SECRET is the secret every scenario identity registers with
	Secret string `envconfig:"E2E_SECRET" default:"E2e-Scenario-Secret-1"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
