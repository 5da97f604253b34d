package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"parrotflower-gateway/internal/flower"
)

const (
	DefaultAdapter        = "hci0"
	DefaultConnectTimeout = 20 * time.Second
)

var ErrInvalidHandle = errors.New("invalid handle")

// Transport is a flower.Transport that holds resources of its own.
type Transport interface {
	flower.Transport
	Close() error
}

type Options struct {
	Adapter        string // "hci0" by default
	ConnectTimeout time.Duration
	GatttoolPath   string // "gatttool" by default
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Adapter == "" {
		o.Adapter = DefaultAdapter
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.GatttoolPath == "" {
		o.GatttoolPath = "gatttool"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Backend is a selectable radio backend.
type Backend struct {
	Name      string
	New       func(Options) (Transport, error)
	Available func(Options) bool
}

var backends = map[string]Backend{
	"bluez": {
		Name:      "bluez",
		New:       func(o Options) (Transport, error) { return NewBlueZTransport(o) },
		Available: blueZAvailable,
	},
	"gatttool": {
		Name:      "gatttool",
		New:       func(o Options) (Transport, error) { return NewGatttoolTransport(o), nil },
		Available: gatttoolAvailable,
	},
}

// Backends returns every known backend, sorted by name.
func Backends() []Backend {
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewTransport builds the named backend.
func NewTransport(name string, opts Options) (Transport, error) {
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return b.New(opts.withDefaults())
}

// ValidBackend reports whether name is a known backend.
func ValidBackend(name string) bool {
	_, ok := backends[name]
	return ok
}
