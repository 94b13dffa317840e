// Package service holds the bus proxies of the LinkIOT services and the
// bindings that expose an implementation on an address.
//
// A proxy turns a method call into one request to its address, carrying the
// method name in the "action" header, and hands the reply or the failure to
// the caller's Handler. Calls never block; handlers run on bus goroutines
// and may complete in any order.
package service

import (
	"context"

	"github.com/JobsHwang/LinkIOT/device"
)

// HeaderAction names the target method of a request.
const HeaderAction = "action"

const (
	ActionHandle           = "handle"
	ActionLogin            = "login"
	ActionLogout           = "logout"
	ActionGetDeviceByToken = "getDeviceByToken"
	ActionUpdateState      = "updateState"
	ActionSetState         = "setState"
	ActionGetState         = "getState"
)

// Handler receives the outcome of one call, exactly once.
type Handler[T any] func(result T, err error)

// DataHandleService processes a data report of a device sensor.
type DataHandleService interface {
	Handle(ctx context.Context, dev *device.Info, sensorID int, data map[string]any,
		handler Handler[map[string]any]) DataHandleService
}

// DeviceManagerService keeps device sessions and their reported and desired
// states.
type DeviceManagerService interface {
	// Login handles the session token.
	Login(ctx context.Context, id, secret string, handler Handler[string]) DeviceManagerService
	Logout(ctx context.Context, token string, handler Handler[struct{}]) DeviceManagerService
	GetDeviceByToken(ctx context.Context, token string, handler Handler[*device.Info]) DeviceManagerService
	// UpdateState reports state and handles the desired state when it
	// differs, or "".
	UpdateState(ctx context.Context, token, state string, handler Handler[string]) DeviceManagerService
	SetState(ctx context.Context, deviceID, desired string, handler Handler[struct{}]) DeviceManagerService
	GetState(ctx context.Context, deviceID string, handler Handler[string]) DeviceManagerService
}
