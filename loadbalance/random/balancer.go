package random

import (
	"math/rand"

	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
)

const Random = "RANDOM"

var (
	_ loadbalance.Picker        = (*Picker)(nil)
	_ loadbalance.PickerBuilder = (*PickerBuilder)(nil)
)

type Picker struct {
	instances []registry.ServiceInstance
	filter    loadbalance.Filter
}

func (p *Picker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
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
	return loadbalance.PickResult{
		Instance: candidates[rand.Intn(len(candidates))],
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
	return Random
}
