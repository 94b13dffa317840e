// Package loadbalance picks one instance of a service for each call.
package loadbalance

import (
	"context"
	"errors"

	"github.com/JobsHwang/LinkIOT/registry"
)

var ErrNoInstanceAvailable = errors.New("loadbalance: no instance available")

type PickInfo struct {
	Ctx     context.Context
	Service string
}

// DoneInfo is reported back once the picked instance served the call.
type DoneInfo struct {
	Err error
}

type PickResult struct {
	Instance registry.ServiceInstance
	// Done may be nil
	Done func(info DoneInfo)
}

type Picker interface {
	Pick(info PickInfo) (PickResult, error)
}

// PickerBuilder builds a picker over the current instances of a service. A
// new picker is built whenever the instances change.
type PickerBuilder interface {
	Build(instances []registry.ServiceInstance) Picker
	Name() string
}

type Filter func(info PickInfo, ins registry.ServiceInstance) bool

func acceptAll(PickInfo, registry.ServiceInstance) bool {
	return true
}

// FilterOrAll returns f, or a filter accepting every instance when f is nil.
func FilterOrAll(f Filter) Filter {
	if f == nil {
		return acceptAll
	}
	return f
}

type groupKey struct{}

// WithGroup restricts the calls made with ctx to instances of group.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey{}, group)
}

// GroupFilter accepts instances of the group set by WithGroup, or every
// instance when ctx has no group.
func GroupFilter(info PickInfo, ins registry.ServiceInstance) bool {
	if info.Ctx == nil {
		return true
	}
	group, ok := info.Ctx.Value(groupKey{}).(string)
	if !ok {
		// There are no groups here, but all groups can be used
		return true
	}
	return group == ins.Group
}
