package linkiot

import (
	"context"
	"sync"
	"time"

	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
	"go.uber.org/zap"
)

// resolver keeps the picker of one service in sync with the registry.
type resolver struct {
	service  string
	registry registry.Registry
	builder  loadbalance.PickerBuilder
	timeout  time.Duration
	logger   *zap.Logger

	mutex  sync.RWMutex
	picker loadbalance.Picker
	close  chan struct{}
	once   sync.Once
}

func newResolver(service string, r registry.Registry, builder loadbalance.PickerBuilder,
	timeout time.Duration, logger *zap.Logger) (*resolver, error) {
	res := &resolver{
		service:  service,
		registry: r,
		builder:  builder,
		timeout:  timeout,
		logger:   logger,
		close:    make(chan struct{}),
	}
	if err := res.resolve(); err != nil {
		return nil, err
	}
	events, err := r.Subscribe(service)
	if err != nil {
		return nil, err
	}
	go res.watch(events)
	return res, nil
}

// resolve 立刻去问一下注册中心，用全部实例重建 picker
func (r *resolver) resolve() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	instances, err := r.registry.ListServices(ctx, r.service)
	cancel()
	if err != nil {
		return err
	}
	picker := r.builder.Build(instances)
	r.mutex.Lock()
	r.picker = picker
	r.mutex.Unlock()
	return nil
}

func (r *resolver) watch(events <-chan registry.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
			// 每次事件发生的时候，直接刷新整个可用服务列表
			if err := r.resolve(); err != nil {
				r.logger.Warn("linkiot: refreshing instances failed",
					zap.String("service", r.service), zap.Error(err))
			}
		case <-r.close:
			return
		}
	}
}

func (r *resolver) Pick(info loadbalance.PickInfo) (loadbalance.PickResult, error) {
	r.mutex.RLock()
	picker := r.picker
	r.mutex.RUnlock()
	return picker.Pick(info)
}

func (r *resolver) Close() {
	r.once.Do(func() {
		close(r.close)
	})
}
