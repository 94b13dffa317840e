package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/JobsHwang/LinkIOT/registry"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

const keyPrefix = "/linkiot"

var _ registry.Registry = (*Registry)(nil)

var typesMap = map[mvccpb.Event_EventType]registry.EventType{
	mvccpb.PUT:    registry.EventTypeAdd,
	mvccpb.DELETE: registry.EventTypeDelete,
}

type Registry struct {
	client      *clientv3.Client
	sess        *concurrency.Session
	lease       clientv3.LeaseID
	mutex       sync.RWMutex
	watchCancel []func()
	logger      *zap.Logger
}

// NewRegistry keeps every registered instance bound to one session lease,
// so instances of a crashed process expire with it. ttl is in seconds,
// 0 keeps the etcd default of 60.
func NewRegistry(c *clientv3.Client, ttl int, logger *zap.Logger) (*Registry, error) {
	opts := make([]concurrency.SessionOption, 0, 1)
	if ttl > 0 {
		opts = append(opts, concurrency.WithTTL(ttl))
	}
	sess, err := concurrency.NewSession(c, opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sess:   sess,
		lease:  sess.Lease(),
		client: c,
		logger: logger,
	}, nil
}

func (r *Registry) Register(ctx context.Context, ins registry.ServiceInstance) error {
	val, err := json.Marshal(ins)
	if err != nil {
		return err
	}
	_, err = r.client.Put(ctx, instanceKey(ins), string(val), clientv3.WithLease(r.lease))
	return err
}

func (r *Registry) Unregister(ctx context.Context, ins registry.ServiceInstance) error {
	_, err := r.client.Delete(ctx, instanceKey(ins))
	return err
}

func (r *Registry) ListServices(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	resp, err := r.client.Get(ctx, serviceKey(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	res := make([]registry.ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var si registry.ServiceInstance
		if err = json.Unmarshal(kv.Value, &si); err != nil {
			return nil, fmt.Errorf("registry: bad instance at %s: %w", kv.Key, err)
		}
		res = append(res, si)
	}
	return res, nil
}

// Subscribe reports instances of serviceName as they come and go. The
// channel is closed by Close or when etcd cancels the watch.
func (r *Registry) Subscribe(serviceName string) (<-chan registry.Event, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = clientv3.WithRequireLeader(ctx)
	r.mutex.Lock()
	r.watchCancel = append(r.watchCancel, cancel)
	r.mutex.Unlock()
	watchCh := r.client.Watch(ctx, serviceKey(serviceName), clientv3.WithPrefix())
	res := make(chan registry.Event)
	go func() {
		defer close(res)
		for {
			select {
			case resp, ok := <-watchCh:
				if !ok || resp.Canceled {
					return
				}
				if err := resp.Err(); err != nil {
					r.logger.Warn("registry: watch failed", zap.String("service", serviceName), zap.Error(err))
					continue
				}
				for _, event := range resp.Events {
					ins, err := decodeEvent(event)
					if err != nil {
						// 忽略这个事件
						r.logger.Warn("registry: skipping bad event", zap.Error(err))
						continue
					}
					select {
					case res <- registry.Event{Type: typesMap[event.Type], Instance: ins}:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return res, nil
}

// Close stops the watches and revokes the session lease. The etcd client
// belongs to the caller and stays open.
func (r *Registry) Close() error {
	r.mutex.Lock()
	for _, cancel := range r.watchCancel {
		cancel()
	}
	r.watchCancel = nil
	r.mutex.Unlock()
	if r.sess == nil {
		return nil
	}
	return r.sess.Close()
}

// decodeEvent reads the instance of a watch event. Deleted keys carry no
// value, the instance is rebuilt from the key.
func decodeEvent(event *clientv3.Event) (registry.ServiceInstance, error) {
	var ins registry.ServiceInstance
	if event.Type == mvccpb.DELETE || len(event.Kv.Value) == 0 {
		return parseKey(string(event.Kv.Key))
	}
	err := json.Unmarshal(event.Kv.Value, &ins)
	return ins, err
}

func instanceKey(ins registry.ServiceInstance) string {
	return fmt.Sprintf("%s/%s/%s/%s", keyPrefix, ins.Name, ins.Endpoint, ins.Address)
}

func serviceKey(serviceName string) string {
	return fmt.Sprintf("%s/%s/", keyPrefix, serviceName)
}

func parseKey(key string) (registry.ServiceInstance, error) {
	segs := strings.SplitN(strings.TrimPrefix(key, keyPrefix+"/"), "/", 3)
	if !strings.HasPrefix(key, keyPrefix+"/") || len(segs) != 3 {
		return registry.ServiceInstance{}, fmt.Errorf("registry: malformed key %s", key)
	}
	return registry.ServiceInstance{Name: segs[0], Endpoint: segs[1], Address: segs[2]}, nil
}
