package opentelemetry

import (
	"context"
	"reflect"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/JobsHwang/LinkIOT/observability/opentelemetry"

const headerAction = "action"

var _ eventbus.Client = (*ClientBus)(nil)

// ClientBus wraps an eventbus.Client with one client span per request. The
// trace context travels to the consumer in the delivery headers.
type ClientBus struct {
	eventbus.Client
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	attrs      []attribute.KeyValue
}

// NewClientBus decorates bus. A nil tracer or propagator falls back to the
// global ones.
func NewClientBus(bus eventbus.Client, port int, tracer trace.Tracer,
	propagator propagation.TextMapPropagator) *ClientBus {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	return &ClientBus{
		Client:     bus,
		tracer:     tracer,
		propagator: propagator,
		attrs: []attribute.KeyValue{
			attribute.String("rpc.system", "linkiot"),
			attribute.String("rpc.component", "client"),
			attribute.String("net.sock.host.addr", observability.Instance(port)),
		},
	}
}

func (b *ClientBus) Request(ctx context.Context, address string, body any,
	opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
	if ctx == nil {
		ctx = context.Background()
	}
	// the caller's options are shared between calls
	opts = opts.Clone()
	ctx, span := b.tracer.Start(ctx, spanName(address, opts.Header(headerAction)),
		trace.WithAttributes(b.attrs...),
		trace.WithAttributes(attribute.String("messaging.destination", address)),
		trace.WithSpanKind(trace.SpanKindClient))
	// inject 过程
	// 要把跟 trace 有关的链路元数据，传递到服务端
	b.propagator.Inject(ctx, propagation.MapCarrier(opts.Headers))
	b.Client.Request(ctx, address, body, opts, func(reply *eventbus.Message, err error) {
		if err != nil {
			span.SetStatus(codes.Error, "client failed")
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()
		if handler != nil {
			handler(reply, err)
		}
	})
}

func (b *ClientBus) RegisterDefaultCodec(typ reflect.Type, codec eventbus.MessageCodec) error {
	return b.Client.RegisterDefaultCodec(typ, codec)
}

func spanName(address, action string) string {
	if action == "" {
		return address
	}
	return address + "/" + action
}
