package rewire

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	rerrors "github.com/toyz/rewire/internal/errors"
)

// ServerConfig holds listener settings, read from REWIRE_SERVER_* variables
type ServerConfig struct {
	// Host is the host to bind to
	Host string `envconfig:"HOST" default:""`

	// Port is the port to listen on
	Port int `envconfig:"PORT" default:"8080"`

	// Adapter selects the engine: gin, echo or fiber
	Adapter string `envconfig:"ADAPTER" default:"gin"`

	// DevAddr serves metrics and live reload when not empty
	DevAddr string `envconfig:"DEV_ADDR" default:""`

	// ShutdownTimeout bounds graceful shutdown of every setup
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadServerConfig reads the server configuration from the environment
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := envconfig.Process(EnvPrefix+"_SERVER", cfg); err != nil {
		return nil, rerrors.WrapConfigurationError("server", "load", err)
	}
	return cfg, nil
}

// Addr returns host:port
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
