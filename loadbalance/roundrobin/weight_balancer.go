package roundrobin

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
)

const WeightRoundRobin = "WEIGHT_ROUND_ROBIN"

var (
	_ loadbalance.Picker        = (*WeightPicker)(nil)
	_ loadbalance.PickerBuilder = (*WeightPickerBuilder)(nil)
)

// WeightPicker is a smooth weighted round robin. A failed call lowers the
// effective weight of its instance by one, a successful call restores it up
// to the configured weight.
type WeightPicker struct {
	nodes  []*weightNode
	mutex  sync.Mutex
	filter loadbalance.Filter
}

func (p *WeightPicker) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	var totalWeight uint32
	var chosen *weightNode
	p.mutex.Lock()
	for _, node := range p.nodes {
		if !p.filter(info, node.instance) {
			continue
		}
		weight := atomic.LoadUint32(&node.efficientWeight)
		totalWeight += weight
		node.currentWeight += int64(weight)
		if chosen == nil || chosen.currentWeight < node.currentWeight {
			chosen = node
		}
	}
	if chosen == nil {
		p.mutex.Unlock()
		return loadbalance.PickResult{}, loadbalance.ErrNoInstanceAvailable
	}
	chosen.currentWeight -= int64(totalWeight)
	p.mutex.Unlock()
	return loadbalance.PickResult{
		Instance: chosen.instance,
		Done: func(info loadbalance.DoneInfo) {
			for {
				// 直接加减是很危险的事情，因为 0 - 1 直接就最大值了
				// 所以用 CAS
				weight := atomic.LoadUint32(&chosen.efficientWeight)
				if info.Err != nil && weight <= 1 {
					return
				}
				if info.Err == nil && (weight == math.MaxUint32 || weight >= chosen.weight) {
					return
				}
				newWeight := weight
				if info.Err == nil {
					newWeight++
				} else {
					newWeight--
				}
				if atomic.CompareAndSwapUint32(&chosen.efficientWeight, weight, newWeight) {
					return
				}
			}
		},
	}, nil
}

type WeightPickerBuilder struct {
	Filter loadbalance.Filter
}

func (b *WeightPickerBuilder) Build(instances []registry.ServiceInstance) loadbalance.Picker {
	nodes := make([]*weightNode, 0, len(instances))
	for _, ins := range instances {
		// 没有配置权重的实例当作 1
		weight := ins.Weight
		if weight == 0 {
			weight = 1
		}
		nodes = append(nodes, &weightNode{
			instance:        ins,
			weight:          weight,
			efficientWeight: weight,
		})
	}
	return &WeightPicker{
		nodes:  nodes,
		filter: loadbalance.FilterOrAll(b.Filter),
	}
}

func (b *WeightPickerBuilder) Name() string {
	return WeightRoundRobin
}

type weightNode struct {
	instance registry.ServiceInstance
	// Initial weight
	weight uint32
	// Current weight
	currentWeight int64
	// Effective weight, adjusted by the outcome of calls
	efficientWeight uint32
}
