package linkiot

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/JobsHwang/LinkIOT/device"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/loadbalance"
	promobserver "github.com/JobsHwang/LinkIOT/observability/metrics/prometheus"
	"github.com/JobsHwang/LinkIOT/ratelimit"
	"github.com/JobsHwang/LinkIOT/registry"
	"github.com/JobsHwang/LinkIOT/service"
	"github.com/gotomicro/ekit/bean/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRegistry keeps instances in memory and notifies subscribers of
// every change.
type memoryRegistry struct {
	mutex     sync.Mutex
	instances map[string][]registry.ServiceInstance
	subs      map[string][]chan registry.Event
}

func newMemoryRegistry() *memoryRegistry {
	return &memoryRegistry{
		instances: map[string][]registry.ServiceInstance{},
		subs:      map[string][]chan registry.Event{},
	}
}

func (r *memoryRegistry) Register(ctx context.Context, inst registry.ServiceInstance) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.instances[inst.Name] = append(r.instances[inst.Name], inst)
	r.notify(registry.Event{Type: registry.EventTypeAdd, Instance: inst})
	return nil
}

func (r *memoryRegistry) Unregister(ctx context.Context, inst registry.ServiceInstance) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	kept := r.instances[inst.Name][:0]
	for _, ins := range r.instances[inst.Name] {
		if ins.Endpoint != inst.Endpoint || ins.Address != inst.Address {
			kept = append(kept, ins)
		}
	}
	r.instances[inst.Name] = kept
	r.notify(registry.Event{Type: registry.EventTypeDelete, Instance: inst})
	return nil
}

func (r *memoryRegistry) notify(event registry.Event) {
	for _, ch := range r.subs[event.Instance.Name] {
		ch <- event
	}
}

func (r *memoryRegistry) ListServices(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]registry.ServiceInstance(nil), r.instances[serviceName]...), nil
}

func (r *memoryRegistry) Subscribe(serviceName string) (<-chan registry.Event, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ch := make(chan registry.Event, 16)
	r.subs[serviceName] = append(r.subs[serviceName], ch)
	return ch, nil
}

func (r *memoryRegistry) Close() error {
	return nil
}

type namedDataHandle struct {
	name string
}

func (h *namedDataHandle) Handle(ctx context.Context, dev *device.Info, sensorID int, data map[string]any,
	handler service.Handler[map[string]any]) service.DataHandleService {
	handler(map[string]any{"server": h.name, "device": dev.ID, "sensorId": sensorID, "temp": data["temp"]}, nil)
	return h
}

// stubDeviceManager accepts the secret "s1" only.
type stubDeviceManager struct{}

func (m stubDeviceManager) Login(ctx context.Context, id, secret string,
	handler service.Handler[string]) service.DeviceManagerService {
	if secret != "s1" {
		handler("", service.NewServiceError(401, "invalid secret"))
		return m
	}
	handler("token-"+id, nil)
	return m
}

func (m stubDeviceManager) Logout(ctx context.Context, token string,
	handler service.Handler[struct{}]) service.DeviceManagerService {
	handler(struct{}{}, nil)
	return m
}

func (m stubDeviceManager) GetDeviceByToken(ctx context.Context, token string,
	handler service.Handler[*device.Info]) service.DeviceManagerService {
	handler(&device.Info{ID: "d1", Token: token, State: device.StatusOn}, nil)
	return m
}

func (m stubDeviceManager) UpdateState(ctx context.Context, token, state string,
	handler service.Handler[string]) service.DeviceManagerService {
	handler("", nil)
	return m
}

func (m stubDeviceManager) SetState(ctx context.Context, deviceID, desired string,
	handler service.Handler[struct{}]) service.DeviceManagerService {
	handler(struct{}{}, nil)
	return m
}

func (m stubDeviceManager) GetState(ctx context.Context, deviceID string,
	handler service.Handler[string]) service.DeviceManagerService {
	handler("on", nil)
	return m
}

func startServer(t *testing.T, r registry.Registry, name string, opts ...option.Option[Server]) *Server {
	srv := NewServer(append([]option.Option[Server]{ServerWithRegistry(r)}, opts...)...)
	srv.RegisterDataHandleService("data-handle", &namedDataHandle{name: name})
	srv.RegisterDeviceManagerService("device-manager", stubDeviceManager{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = srv.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
	})
	return srv
}

func await[T any](t *testing.T, call func(handler service.Handler[T])) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	call(func(val T, err error) {
		ch <- result{val: val, err: err}
	})
	select {
	case res := <-ch:
		return res.val, res.err
	case <-time.After(time.Second * 5):
		t.Fatal("no reply")
	}
	var zero T
	return zero, nil
}

func instanceCount(r registry.Registry, name string) func() bool {
	return func() bool {
		ins, _ := r.ListServices(context.Background(), name)
		return len(ins) > 0
	}
}

func TestClient_DataHandleService(t *testing.T) {
	r := newMemoryRegistry()
	startServer(t, r, "a")
	require.Eventually(t, instanceCount(r, "data-handle"), time.Second*3, time.Millisecond*10)

	client := NewClient(r)
	defer func() {
		_ = client.Close()
	}()
	proxy, err := client.DataHandleService(context.Background(), "data-handle")
	require.NoError(t, err)
	assert.Equal(t, "data-handle", proxy.Address())

	dev := &device.Info{ID: "d1", Name: "lamp", Sensors: []device.Sensor{{ID: 7, DataType: "int"}}}
	res, err := await(t, func(handler service.Handler[map[string]any]) {
		proxy.Handle(context.Background(), dev, 7, map[string]any{"temp": 21}, handler)
	})
	require.NoError(t, err)
	// numbers come back from the wire as json.Number
	assert.Equal(t, map[string]any{
		"server":   "a",
		"device":   "d1",
		"sensorId": json.Number("7"),
		"temp":     json.Number("21"),
	}, res)
}

func TestClient_ServiceErrorSurvivesTheWire(t *testing.T) {
	r := newMemoryRegistry()
	startServer(t, r, "a")
	require.Eventually(t, instanceCount(r, "device-manager"), time.Second*3, time.Millisecond*10)

	client := NewClient(r)
	defer func() {
		_ = client.Close()
	}()
	proxy, err := client.DeviceManagerService(context.Background(), "device-manager")
	require.NoError(t, err)

	token, err := await(t, func(handler service.Handler[string]) {
		proxy.Login(context.Background(), "d1", "s1", handler)
	})
	require.NoError(t, err)
	assert.Equal(t, "token-d1", token)

	_, err = await(t, func(handler service.Handler[string]) {
		proxy.Login(context.Background(), "d1", "wrong", handler)
	})
	var svcErr *service.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 401, svcErr.Code)
	assert.Equal(t, "invalid secret", svcErr.Message)

	dev, err := await(t, func(handler service.Handler[*device.Info]) {
		proxy.GetDeviceByToken(context.Background(), "token-d1", handler)
	})
	require.NoError(t, err)
	assert.Equal(t, "d1", dev.ID)
	assert.Equal(t, device.StatusOn, dev.State)
}

func TestClient_FollowsRegistry(t *testing.T) {
	r := newMemoryRegistry()
	a := startServer(t, r, "a")
	require.Eventually(t, instanceCount(r, "data-handle"), time.Second*3, time.Millisecond*10)

	client := NewClient(r)
	defer func() {
		_ = client.Close()
	}()
	proxy, err := client.DataHandleService(context.Background(), "data-handle")
	require.NoError(t, err)
	dev := &device.Info{ID: "d1"}
	// a call racing a registry change may still reach a closing server
	call := func() string {
		res, err := await(t, func(handler service.Handler[map[string]any]) {
			proxy.Handle(context.Background(), dev, 1, nil, handler)
		})
		if err != nil {
			return ""
		}
		return res["server"].(string)
	}
	assert.Equal(t, "a", call())

	startServer(t, r, "b")
	seen := map[string]bool{}
	require.Eventually(t, func() bool {
		seen[call()] = true
		return seen["a"] && seen["b"]
	}, time.Second*3, time.Millisecond*10)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return call() == "b" && call() == "b"
	}, time.Second*3, time.Millisecond*10)
}

func TestClient_NoInstance(t *testing.T) {
	client := NewClient(newMemoryRegistry())
	proxy, err := client.DataHandleService(context.Background(), "data-handle")
	require.NoError(t, err)
	_, err = await(t, func(handler service.Handler[map[string]any]) {
		proxy.Handle(context.Background(), nil, 1, nil, handler)
	})
	assert.ErrorIs(t, err, loadbalance.ErrNoInstanceAvailable)

	require.NoError(t, client.Close())
	_, err = client.DataHandleService(context.Background(), "other")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestServer_Interceptors(t *testing.T) {
	r := newMemoryRegistry()
	metrics := prometheus.NewRegistry()
	startServer(t, r, "a", ServerWithInterceptors(
		(&promobserver.ServerInterceptorBuilder{
			Namespace:  "linkiot",
			Subsystem:  "server",
			Name:       "bus",
			Help:       "bound services",
			Registerer: metrics,
		}).Build(),
		ratelimit.NewActionLimiter(service.ActionLogin, ratelimit.NewTokenBucketLimiter(1, time.Hour)).Interceptor(),
	))
	require.Eventually(t, instanceCount(r, "device-manager"), time.Second*3, time.Millisecond*10)

	client := NewClient(r)
	defer func() {
		_ = client.Close()
	}()
	proxy, err := client.DeviceManagerService(context.Background(), "device-manager")
	require.NoError(t, err)
	login := func() error {
		_, err := await(t, func(handler service.Handler[string]) {
			proxy.Login(context.Background(), "d1", "s1", handler)
		})
		return err
	}
	require.NoError(t, login())
	err = login()
	var replyErr *eventbus.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, ratelimit.CodeRateLimited, replyErr.Code)

	// other actions are not limited
	_, err = await(t, func(handler service.Handler[string]) {
		proxy.GetState(context.Background(), "d1", handler)
	})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(metrics, "linkiot_server_bus_error_cnt")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
