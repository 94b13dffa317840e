package random

import (
	"math/rand"

	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
)

const WeightRandom = "WEIGHT_RANDOM"

var (
	_ loadbalance.Picker        = (*WeightPicker)(nil)
	_ loadbalance.PickerBuilder = (*WeightPickerBuilder)(nil)
)

type WeightPicker struct {
	instances []registry.ServiceInstance
	weights   []uint32
	filter    loadbalance.Filter
}

func (p *WeightPicker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	var totalWeight uint32
	for i, ins := range p.instances {
		if !p.filter(info, ins) {
			continue
		}
		totalWeight += p.weights[i]
	}
	if totalWeight == 0 {
		return loadbalance.PickResult{}, loadbalance.ErrNoInstanceAvailable
	}
	val := uint32(rand.Int63n(int64(totalWeight)))
	for i, ins := range p.instances {
		if !p.filter(info, ins) {
			continue
		}
		if val < p.weights[i] {
			return loadbalance.PickResult{Instance: ins}, nil
		}
		val -= p.weights[i]
	}
	// 不可能走到这里
	return loadbalance.PickResult{}, loadbalance.ErrNoInstanceAvailable
}

type WeightPickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *WeightPickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	weights := make([]uint32, 0, len(instances))
	for _, ins := range instances {
		weight := ins.Weight
		if weight == 0 {
			weight = 1
		}
		weights = append(weights, weight)
	}
	return &WeightPicker{
		instances: append([]registry.ServiceInstance(nil), instances...),
		weights:   weights,
		filter:    loadbalance.FilterOrAll(b.Filter),
	}
}

func (b *WeightPickerBuilder) Name() string {
	return WeightRandom
}
