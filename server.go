package linkiot

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/observability"
	"github.com/JobsHwang/LinkIOT/registry"
	"github.com/JobsHwang/LinkIOT/rpc"
	"github.com/JobsHwang/LinkIOT/service"
	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
)

// Server binds service implementations on a local bus, serves the bus over
// tcp and publishes every binding in the registry.
type Server struct {
	weight   uint32
	group    string
	endpoint string

	bus          *eventbus.EventBus
	rpc          *rpc.Server
	rpcOpts      []option.Option[rpc.Server]
	registry     registry.Registry
	interceptors []eventbus.Interceptor
	// 单个操作的超时时间，一般用于和注册中心打交道
	registerTimeout time.Duration
	logger          *zap.Logger

	mutex     sync.Mutex
	bindings  []*service.Binding
	instances []registry.ServiceInstance
}

func ServerWithWeight(weight uint32) option.Option[Server] {
	return func(server *Server) {
		server.weight = weight
	}
}

func ServerWithGroup(group string) option.Option[Server] {
	return func(server *Server) {
		server.group = group
	}
}

func ServerWithRegistry(r registry.Registry) option.Option[Server] {
	return func(server *Server) {
		server.registry = r
	}
}

// ServerWithEndpoint sets the host:port published for clients. By default
// it is the listening address, with the outbound IP when listening on all
// interfaces.
func ServerWithEndpoint(endpoint string) option.Option[Server] {
	return func(server *Server) {
		server.endpoint = endpoint
	}
}

func ServerWithRegisterTimeout(timeout time.Duration) option.Option[Server] {
	return func(server *Server) {
		server.registerTimeout = timeout
	}
}

// ServerWithInterceptors wraps every binding registered afterwards.
func ServerWithInterceptors(interceptors ...eventbus.Interceptor) option.Option[Server] {
	return func(server *Server) {
		server.interceptors = append(server.interceptors, interceptors...)
	}
}

func ServerWithRPCOptions(opts ...option.Option[rpc.Server]) option.Option[Server] {
	return func(server *Server) {
		server.rpcOpts = append(server.rpcOpts, opts...)
	}
}

func ServerWithLogger(logger *zap.Logger) option.Option[Server] {
	return func(server *Server) {
		server.logger = logger
	}
}

func NewServer(opts ...option.Option[Server]) *Server {
	res := &Server{
		registerTimeout: time.Second * 10,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(res)
	}
	res.bus = eventbus.New(eventbus.WithLogger(res.logger))
	res.rpc = rpc.NewServer(res.bus, append([]option.Option[rpc.Server]{rpc.ServerWithLogger(res.logger)}, res.rpcOpts...)...)
	return res
}

// Bus is the local bus the bindings consume from.
func (s *Server) Bus() *eventbus.EventBus {
	return s.bus
}

// RegisterDataHandleService binds svc under the service name. The name is
// also the bus address clients send to.
func (s *Server) RegisterDataHandleService(name string, svc service.DataHandleService) *service.Binding {
	return s.bind(service.RegisterDataHandleService(s.bus, name, svc, s.bindingOpts()...))
}

func (s *Server) RegisterDeviceManagerService(name string, svc service.DeviceManagerService) *service.Binding {
	return s.bind(service.RegisterDeviceManagerService(s.bus, name, svc, s.bindingOpts()...))
}

func (s *Server) bindingOpts() []option.Option[service.Binding] {
	return []option.Option[service.Binding]{
		service.WithInterceptors(s.interceptors...),
		service.WithBindingLogger(s.logger),
	}
}

func (s *Server) bind(b *service.Binding) *service.Binding {
	s.mutex.Lock()
	s.bindings = append(s.bindings, b)
	s.mutex.Unlock()
	return b
}

// Start 当用户调用这个方法的时候，就是服务已经准备好
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve publishes the bindings and serves listener until Close. Bindings
// added after Serve are served but not published.
func (s *Server) Serve(listener net.Listener) error {
	// 一定是先启动端口再注册
	if s.registry != nil {
		if err := s.register(listener.Addr()); err != nil {
			_ = listener.Close()
			return err
		}
	}
	return s.rpc.Serve(listener)
}

func (s *Server) register(addr net.Addr) error {
	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = advertise(addr)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.registerTimeout)
	defer cancel()
	for _, b := range s.bindings {
		ins := registry.ServiceInstance{
			Name:     b.Address(),
			Address:  b.Address(),
			Endpoint: endpoint,
			Weight:   s.weight,
			Group:    s.group,
		}
		if err := s.registry.Register(ctx, ins); err != nil {
			return err
		}
		s.instances = append(s.instances, ins)
		s.logger.Info("linkiot: service registered",
			zap.String("service", ins.Name), zap.String("endpoint", endpoint))
	}
	return nil
}

func advertise(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		if outbound := observability.GetOutboundIP(); outbound != "" {
			host = outbound
		}
	}
	return net.JoinHostPort(host, port)
}

// Close unregisters first so that clients stop picking this server, then
// stops serving and drops the bindings.
func (s *Server) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var errs []error
	if s.registry != nil && len(s.instances) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.registerTimeout)
		for _, ins := range s.instances {
			errs = append(errs, s.registry.Unregister(ctx, ins))
		}
		cancel()
		s.instances = nil
	}
	errs = append(errs, s.rpc.Close())
	for _, b := range s.bindings {
		b.Unregister()
	}
	s.bindings = nil
	errs = append(errs, s.bus.Close())
	return errors.Join(errs...)
}
