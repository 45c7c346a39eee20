package driver

import (
	"errors"

	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/logging"
	"github.com/bittoy/platformdesc/metrics"
	"github.com/bittoy/platformdesc/scripting"
)

// Config is the Driver's resolved configuration, built from an Option list
// the way types.NewConfig builds a types.Config.
type Config struct {
	TypeCatalog      hostmodel.TypeCatalog
	ObjectModel      hostmodel.ObjectModel
	Machine          hostmodel.Machine
	InitHandler      hostmodel.InitHandler
	Resolver         hostmodel.UsingResolver
	DefaultNamespace string
	Logger           logging.Logger
	Metrics          *metrics.Recorder
}

// Option mutates a Config under construction, mirroring types.Option's
// func(*Config) error shape.
type Option func(*Config) error

// WithTypeCatalog sets the host type catalog entries resolve names
// against. Required.
func WithTypeCatalog(tc hostmodel.TypeCatalog) Option {
	return func(c *Config) error {
		c.TypeCatalog = tc
		return nil
	}
}

// WithObjectModel sets the capability surface entries are constructed,
// configured and registered through. Required.
func WithObjectModel(om hostmodel.ObjectModel) Option {
	return func(c *Config) error {
		c.ObjectModel = om
		return nil
	}
}

// WithMachine sets the host Machine peripherals register onto. Required.
func WithMachine(m hostmodel.Machine) Option {
	return func(c *Config) error {
		c.Machine = m
		return nil
	}
}

// WithInitHandler overrides the init-section script engine, which
// defaults to scripting.NewGojaInitHandler().
func WithInitHandler(h hostmodel.InitHandler) Option {
	return func(c *Config) error {
		c.InitHandler = h
		return nil
	}
}

// WithUsingResolver overrides how `using` paths are resolved, which
// defaults to resolving relative to the including file's own directory.
func WithUsingResolver(r hostmodel.UsingResolver) Option {
	return func(c *Config) error {
		c.Resolver = r
		return nil
	}
}

// WithDefaultNamespace sets a namespace prefix that is tried when a type
// name does not resolve as written.
func WithDefaultNamespace(ns string) Option {
	return func(c *Config) error {
		c.DefaultNamespace = ns
		return nil
	}
}

// WithLogger overrides the driver's Logger, which defaults to
// logging.Default().
func WithLogger(l logging.Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

// WithMetrics attaches a metrics.Recorder. Passing nil (the default)
// leaves the driver unmonitored; every Recorder method tolerates a nil
// receiver.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Config) error {
		c.Metrics = r
		return nil
	}
}

func newConfig(opts ...Option) (*Config, error) {
	c := &Config{
		InitHandler: scripting.NewGojaInitHandler(),
		Resolver:    relativeFileResolver{},
		Logger:      logging.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.TypeCatalog == nil {
		return nil, errors.New("driver: WithTypeCatalog is required")
	}
	if c.ObjectModel == nil {
		return nil, errors.New("driver: WithObjectModel is required")
	}
	if c.Machine == nil {
		return nil, errors.New("driver: WithMachine is required")
	}
	return c, nil
}
