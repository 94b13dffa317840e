package service

import (
	"errors"
	"fmt"

	"github.com/JobsHwang/LinkIOT/rpc/serialize/json"
)

var (
	ErrProxyClosed     = errors.New("Proxy is closed")
	ErrUnexpectedReply = errors.New("service: unexpected reply body")
)

// ServiceError is a failure raised by a service implementation. It keeps
// its type across the bus through ServiceErrorCodec.
type ServiceError struct {
	Code    int            `json:"failureCode"`
	Message string         `json:"message"`
	Debug   map[string]any `json:"debugInfo,omitempty"`
}

func NewServiceError(code int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

func (e *ServiceError) Error() string {
	return e.Message
}

const ServiceErrorCodecName = "ServiceError"

// ServiceErrorCodec is the default codec of *ServiceError.
type ServiceErrorCodec struct{}

func (ServiceErrorCodec) Name() string {
	return ServiceErrorCodecName
}

func (ServiceErrorCodec) Encode(val any) ([]byte, error) {
	se, ok := val.(*ServiceError)
	if !ok {
		return nil, fmt.Errorf("service: %s cannot encode %T", ServiceErrorCodecName, val)
	}
	return json.Serializer{}.Encode(se)
}

func (ServiceErrorCodec) Decode(data []byte) (any, error) {
	se := &ServiceError{}
	if err := (json.Serializer{}).Decode(data, se); err != nil {
		return nil, err
	}
	return se, nil
}

func (ServiceErrorCodec) Transform(val any) any {
	se, ok := val.(*ServiceError)
	if !ok || se == nil {
		return val
	}
	res := &ServiceError{Code: se.Code, Message: se.Message}
	if se.Debug != nil {
		res.Debug = make(map[string]any, len(se.Debug))
		for k, v := range se.Debug {
			res.Debug[k] = v
		}
	}
	return res
}
