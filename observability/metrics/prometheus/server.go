package prometheus

import (
	"context"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type ServerInterceptorBuilder struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string

	// Port is appended to the instance label
	Port int
	// Registerer defaults to prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// Build registers the collectors and returns a consumer interceptor that
// observes every message by bus address and action.
func (b *ServerInterceptorBuilder) Build() eventbus.Interceptor {
	constLabels := map[string]string{
		"instance": observability.Instance(b.Port),
		"kind":     "server",
	}
	labels := []string{"address", "action"}
	summaryVec := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Help:        b.Help,
		Name:        b.Name + "_response",
		ConstLabels: constLabels,
		Objectives: map[float64]float64{
			0.5:   0.01,
			0.75:  0.01,
			0.9:   0.01,
			0.99:  0.001,
			0.999: 0.0001,
		},
	}, labels)

	errCntVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Name:        b.Name + "_error_cnt",
		Help:        b.Help,
		ConstLabels: constLabels,
	}, labels)

	reqCntVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Name:        b.Name + "_active_req_cnt",
		Help:        b.Help,
		ConstLabels: constLabels,
	}, labels)
	registerer := b.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(summaryVec, errCntVec, reqCntVec)

	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, msg *eventbus.Message) {
			labelValues := []string{msg.Address(), msg.Header("action")}
			reqCnt := reqCntVec.WithLabelValues(labelValues...)
			reqCnt.Inc()
			startTime := time.Now()
			done := func(err error) {
				if err != nil {
					errCntVec.WithLabelValues(labelValues...).Inc()
				}
				reqCnt.Dec()
				summaryVec.WithLabelValues(labelValues...).
					Observe(float64(time.Since(startTime).Milliseconds()))
			}
			if !msg.ExpectsReply() {
				defer done(nil)
				next(ctx, msg)
				return
			}
			msg.AfterReply(func(body any, err error) {
				done(err)
			})
			next(ctx, msg)
		}
	}
}
