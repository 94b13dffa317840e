package eventbus

import "time"

// DefaultSendTimeout is applied when a request does not carry its own timeout.
const DefaultSendTimeout = 30 * time.Second

// DeliveryOptions is the per-call metadata attached to an outbound message.
type DeliveryOptions struct {
	SendTimeout time.Duration
	// CodecName selects a registered codec for the body instead of the
	// default lookup by type.
	CodecName string
	Headers   map[string]string
}

func NewDeliveryOptions() *DeliveryOptions {
	return &DeliveryOptions{
		SendTimeout: DefaultSendTimeout,
		Headers:     make(map[string]string, 2),
	}
}

// Clone returns a copy whose headers can be changed without touching o.
func (o *DeliveryOptions) Clone() *DeliveryOptions {
	if o == nil {
		return NewDeliveryOptions()
	}
	headers := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		headers[k] = v
	}
	return &DeliveryOptions{
		SendTimeout: o.SendTimeout,
		CodecName:   o.CodecName,
		Headers:     headers,
	}
}

func (o *DeliveryOptions) AddHeader(key, value string) *DeliveryOptions {
	if o.Headers == nil {
		o.Headers = make(map[string]string, 2)
	}
	o.Headers[key] = value
	return o
}

func (o *DeliveryOptions) Header(key string) string {
	return o.Headers[key]
}

func (o *DeliveryOptions) SetSendTimeout(timeout time.Duration) *DeliveryOptions {
	o.SendTimeout = timeout
	return o
}

func (o *DeliveryOptions) SetCodecName(name string) *DeliveryOptions {
	o.CodecName = name
	return o
}

// Timeout is SendTimeout, or DefaultSendTimeout when unset.
func (o *DeliveryOptions) Timeout() time.Duration {
	if o.SendTimeout <= 0 {
		return DefaultSendTimeout
	}
	return o.SendTimeout
}
