package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	StorageRoot          string        `env:"STORAGE_ROOT,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH"`
	AuthSecret           string        `env:"AUTH_SECRET,required=true"`
	AuthIssuer           string        `env:"AUTH_ISSUER,default=courier"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=50051"`
	MetricsPort          int           `env:"METRICS_PORT,default=9090"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	ProcessorTimeout     time.Duration `env:"PROCESSOR_TIMEOUT,default=5s"`
	BuiltinProcessors    string        `env:"BUILTIN_PROCESSORS,default=echo"`
	CensorCharacter      string        `env:"CENSOR_CHARACTER,default=*"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
}

// LoadConfig reads an optional .env file then the environment. Variables
// already set in the environment win over the file.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// A missing file is fine
		_ = godotenv.Load(f)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.ConnectionBufferSize < 1 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.ProcessorTimeout <= 0 {
		return fmt.Errorf("PROCESSOR_TIMEOUT must be positive, got %s", c.ProcessorTimeout)
	}
	if c.MetricInterval <= 0 {
		return fmt.Errorf("METRIC_INTERVAL must be positive, got %s", c.MetricInterval)
	}
	if _, err := CharacterRune(c.CensorCharacter); err != nil {
		return err
	}
	return nil
}

// Processors lists the built-in processors to register, in order.
func (c Config) Processors() []string {
	var names []string
	for _, name := range strings.Split(c.BuiltinProcessors, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSOR_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
