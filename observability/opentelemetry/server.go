package opentelemetry

import (
	"context"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type ServerInterceptorBuilder struct {
	port       int
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func NewServerInterceptorBuilder(port int, tracer trace.Tracer, propagator propagation.TextMapPropagator) *ServerInterceptorBuilder {
	return &ServerInterceptorBuilder{port: port, tracer: tracer, propagator: propagator}
}

// Build returns a consumer interceptor that continues the caller's trace.
// The span ends when the message is answered.
func (b *ServerInterceptorBuilder) Build() eventbus.Interceptor {
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	propagator := b.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	address := observability.Instance(b.port)
	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, msg *eventbus.Message) {
			ctx = propagator.Extract(ctx, propagation.MapCarrier(msg.Headers()))
			ctx, span := tracer.Start(ctx, spanName(msg.Address(), msg.Header(headerAction)),
				trace.WithSpanKind(trace.SpanKindServer))
			// 这里可以记录非常多的数据，一般来说可以考虑机器本身的信息，例如 ip，端口
			span.SetAttributes(attribute.String("net.sock.host.addr", address))
			if !msg.ExpectsReply() {
				defer span.End()
				next(ctx, msg)
				return
			}
			msg.AfterReply(func(body any, err error) {
				if err != nil {
					span.SetStatus(codes.Error, "server failed")
					span.RecordError(err)
				}
				span.End()
			})
			next(ctx, msg)
		}
	}
}
