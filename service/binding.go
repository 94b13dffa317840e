package service

import (
	"context"
	"errors"
	"reflect"

	"github.com/JobsHwang/LinkIOT/device"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/internal/value"
	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
)

// Consumers is the part of a bus a Binding registers on.
type Consumers interface {
	Consumer(address string, handler eventbus.Handler, interceptors ...eventbus.Interceptor) func()
	RegisterDefaultCodec(typ reflect.Type, codec eventbus.MessageCodec) error
}

type action func(ctx context.Context, msg *eventbus.Message, args map[string]any) error

// Binding exposes a service implementation on an address. Requests are
// routed by their action header.
type Binding struct {
	address      string
	actions      map[string]action
	interceptors []eventbus.Interceptor
	logger       *zap.Logger
	unregister   func()
}

func WithInterceptors(interceptors ...eventbus.Interceptor) option.Option[Binding] {
	return func(b *Binding) {
		b.interceptors = append(b.interceptors, interceptors...)
	}
}

func WithBindingLogger(logger *zap.Logger) option.Option[Binding] {
	return func(b *Binding) {
		b.logger = logger
	}
}

func newBinding(bus Consumers, address string, actions map[string]action, opts []option.Option[Binding]) *Binding {
	res := &Binding{
		address: address,
		actions: actions,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(res)
	}
	registerFailureCodec(bus, res.logger)
	res.unregister = bus.Consumer(address, res.handle, res.interceptors...)
	return res
}

func (b *Binding) Address() string {
	return b.address
}

// Unregister removes the binding from the bus.
func (b *Binding) Unregister() {
	b.unregister()
}

func (b *Binding) handle(ctx context.Context, msg *eventbus.Message) {
	name := msg.Header(HeaderAction)
	if name == "" {
		msg.Fail(-1, "action not specified")
		return
	}
	act, ok := b.actions[name]
	if !ok {
		msg.Fail(-1, "Invalid action: "+name)
		return
	}
	args, err := value.Map(msg.Body())
	if err != nil {
		msg.Fail(-1, err.Error())
		return
	}
	if err = act(ctx, msg, args); err != nil {
		b.logger.Debug("service: invalid arguments",
			zap.String("address", b.address), zap.String("action", name), zap.Error(err))
		msg.Fail(-1, err.Error())
	}
}

// replyTo answers msg with the outcome of a call. A *ServiceError keeps its
// type, other errors become a failure with code -1.
func replyTo[T any](msg *eventbus.Message, encode func(T) any) Handler[T] {
	return func(result T, err error) {
		if err != nil {
			var se *ServiceError
			if errors.As(err, &se) {
				msg.FailWith(se)
				return
			}
			msg.Fail(-1, err.Error())
			return
		}
		msg.Reply(encode(result))
	}
}

func identity[T any](val T) any {
	return val
}

func nothing(struct{}) any {
	return nil
}

// RegisterDataHandleService binds svc to address.
func RegisterDataHandleService(bus Consumers, address string, svc DataHandleService,
	opts ...option.Option[Binding]) *Binding {
	return newBinding(bus, address, map[string]action{
		ActionHandle: func(ctx context.Context, msg *eventbus.Message, args map[string]any) error {
			dm, err := value.Map(args["device"])
			if err != nil {
				return err
			}
			dev, err := device.FromJSON(dm)
			if err != nil {
				return err
			}
			sensorID, err := value.Int(args["sensorId"])
			if err != nil {
				return err
			}
			data, err := value.Map(args["data"])
			if err != nil {
				return err
			}
			svc.Handle(ctx, dev, sensorID, data, replyTo(msg, func(res map[string]any) any {
				return mapJSON(res)
			}))
			return nil
		},
	}, opts)
}

// RegisterDeviceManagerService binds svc to address.
func RegisterDeviceManagerService(bus Consumers, address string, svc DeviceManagerService,
	opts ...option.Option[Binding]) *Binding {
	return newBinding(bus, address, map[string]action{
		ActionLogin: func(ctx context.Context, msg *eventbus.Message, args map[string]any) error {
			id, secret, err := twoStrings(args, "id", "secret")
			if err != nil {
				return err
			}
			svc.Login(ctx, id, secret, replyTo(msg, identity[string]))
			return nil
		},
		ActionLogout: func(ctx context.Context, msg *eventbus.Message, args map[string]any) error {
			token, err := value.String(args["token"])
			if err != nil {
				return err
			}
			svc.Logout(ctx, token, replyTo(msg, nothing))
			return nil
		},
		ActionGetDeviceByToken: func(ctx context.Context, msg *eventbus.Message, args map[string]any) error {
			token, err := value.String(args["token"])
			if err != nil {
				return err
			}
			svc.GetDeviceByToken(ctx, token, replyTo(msg, deviceJSON))
			return nil
		},
		ActionUpdateState: func(ctx context.Context, msg *eventbus.Message, args map[string]any) error {
			token, state, err := twoStrings(args, "token", "state")
			if err != nil {
				return err
			}
			svc.UpdateState(ctx, token, state, replyTo(msg, identity[string]))
			return nil
		},
		ActionSetState: func(ctx context.Context, msg *eventbus.Message, args map[string]any) error {
			deviceID, desired, err := twoStrings(args, "deviceId", "desired")
			if err != nil {
				return err
			}
			svc.SetState(ctx, deviceID, desired, replyTo(msg, nothing))
			return nil
		},
		ActionGetState: func(ctx context.Context, msg *eventbus.Message, args map[string]any) error {
			deviceID, err := value.String(args["deviceId"])
			if err != nil {
				return err
			}
			svc.GetState(ctx, deviceID, replyTo(msg, identity[string]))
			return nil
		},
	}, opts)
}

func twoStrings(args map[string]any, first, second string) (string, string, error) {
	a, err := value.String(args[first])
	if err != nil {
		return "", "", err
	}
	b, err := value.String(args[second])
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}
