package roundrobin

import (
	"sync"

	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
)

const RoundRobin = "ROUND_ROBIN"

var (
	_ loadbalance.Picker        = (*Picker)(nil)
	_ loadbalance.PickerBuilder = (*PickerBuilder)(nil)
)

type Picker struct {
	cnt       uint64
	instances []registry.ServiceInstance
	mutex     sync.Mutex
	filter    loadbalance.Filter
}

func (p *Picker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	// 原子操作也可以，但那样就不是严格的轮询了
	p.mutex.Lock()
	defer p.mutex.Unlock()
	candidates := make([]registry.ServiceInstance, 0, len(p.instances))
	for _, ins := range p.instances {
		if !p.filter(info, ins) {
			continue
		}
		candidates = append(candidates, ins)
	}
	if len(candidates) == 0 {
		return loadbalance.PickResult{}, loadbalance.ErrNoInstanceAvailable
	}
	index := p.cnt % uint64(len(candidates))
	p.cnt++
	return loadbalance.PickResult{
		Instance: candidates[index],
	}, nil
}

type PickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *PickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	return &Picker{
		instances: append([]registry.ServiceInstance(nil), instances...),
		filter:    loadbalance.FilterOrAll(b.Filter),
	}
}

func (b *PickerBuilder) Name() string {
	return RoundRobin
}
