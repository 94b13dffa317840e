package leastactive

import (
	"math"
	"sync/atomic"

	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
)

const LeastActive = "LEAST_ACTIVE"

var (
	_ loadbalance.Picker        = (*Picker)(nil)
	_ loadbalance.PickerBuilder = (*PickerBuilder)(nil)
)

// Picker picks the instance with the fewest calls in flight. Counts are
// read without a lock, so concurrent picks may choose the same instance.
type Picker struct {
	nodes  []*node
	filter loadbalance.Filter
}

func (p *Picker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	var leastActive uint32 = math.MaxUint32
	var res *node
	for _, n := range p.nodes {
		if !p.filter(info, n.instance) {
			continue
		}
		active := atomic.LoadUint32(&n.active)
		if res == nil || active < leastActive {
			leastActive = active
			res = n
		}
	}
	if res == nil {
		return loadbalance.PickResult{}, loadbalance.ErrNoInstanceAvailable
	}
	atomic.AddUint32(&res.active, 1)
	return loadbalance.PickResult{
		Instance: res.instance,
		Done: func(info loadbalance.DoneInfo) {
			atomic.AddUint32(&res.active, ^uint32(0))
		},
	}, nil
}

type PickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *PickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	nodes := make([]*node, 0, len(instances))
	for _, ins := range instances {
		nodes = append(nodes, &node{instance: ins})
	}
	return &Picker{
		nodes:  nodes,
		filter: loadbalance.FilterOrAll(b.Filter),
	}
}

func (b *PickerBuilder) Name() string {
	return LeastActive
}

type node struct {
	active   uint32
	instance registry.ServiceInstance
}
