package transport

import (
	"fmt"
	"time"

	"github.com/merchkit/stockcast/internal/domain/dispatch"
)

// Transport kind strings accepted by the factory.
const (
	KindDirect = "direct"
	KindAMQP   = "amqp"
)

// Config carries the settings needed to build either transport. The
// kind is selected once per process lifetime, not per call.
type Config struct {
	Kind      string
	Endpoint  string // direct: scoring service URL
	AuthToken string // direct: optional internal token
	AMQPURL   string // amqp: broker URL
	Queue     string // amqp: request queue name
	Timeout   time.Duration
}

// New builds the transport selected by cfg.Kind.
func New(cfg Config) (dispatch.Transport, error) {
	switch cfg.Kind {
	case KindDirect, "":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("direct transport requires an endpoint")
		}
		return NewDirect(cfg.Endpoint,
			WithAuthToken(cfg.AuthToken),
			WithTimeout(cfg.Timeout),
		), nil
	case KindAMQP:
		if cfg.AMQPURL == "" || cfg.Queue == "" {
			return nil, fmt.Errorf("amqp transport requires a broker url and a queue")
		}
		return NewAMQP(cfg.AMQPURL, cfg.Queue, WithAMQPTimeout(cfg.Timeout))
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
