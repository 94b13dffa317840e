// Package registry publishes where service bindings can be reached.
package registry

import (
	"context"
	"io"
)

// ServiceInstance is one binding of a service. Address is the bus address
// the binding consumes, Endpoint the host:port of the bridge serving it.
type ServiceInstance struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Endpoint string `json:"endpoint"`
	Weight   uint32 `json:"weight"`
	Group    string `json:"group"`
}

type EventType int

const (
	EventTypeUnknown EventType = iota
	EventTypeAdd
	EventTypeDelete
)

type Event struct {
	Type     EventType
	Instance ServiceInstance
}

//go:generate mockgen -package=mocks -destination=mocks/registry.mock.go -source=types.go Registry
type Registry interface {
	io.Closer
	Register(ctx context.Context, inst ServiceInstance) error
	Unregister(ctx context.Context, inst ServiceInstance) error
	ListServices(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Subscribe(serviceName string) (<-chan Event, error)
}
