package service

import (
	"context"

	"github.com/JobsHwang/LinkIOT/device"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/gotomicro/ekit/bean/option"
)

var _ DeviceManagerService = (*DeviceManagerServiceProxy)(nil)

// DeviceManagerServiceProxy calls a DeviceManagerService bound to an address.
type DeviceManagerServiceProxy struct {
	Proxy
}

func NewDeviceManagerServiceProxy(bus eventbus.Client, address string,
	opts ...option.Option[Proxy]) *DeviceManagerServiceProxy {
	res := &DeviceManagerServiceProxy{}
	res.init(bus, address, opts)
	return res
}

func (p *DeviceManagerServiceProxy) Login(ctx context.Context, id, secret string,
	handler Handler[string]) DeviceManagerService {
	invoke(ctx, &p.Proxy, ActionLogin, map[string]any{
		"id":     id,
		"secret": secret,
	}, decodeString, handler)
	return p
}

func (p *DeviceManagerServiceProxy) Logout(ctx context.Context, token string,
	handler Handler[struct{}]) DeviceManagerService {
	invoke(ctx, &p.Proxy, ActionLogout, map[string]any{
		"token": token,
	}, decodeNothing, handler)
	return p
}

func (p *DeviceManagerServiceProxy) GetDeviceByToken(ctx context.Context, token string,
	handler Handler[*device.Info]) DeviceManagerService {
	invoke(ctx, &p.Proxy, ActionGetDeviceByToken, map[string]any{
		"token": token,
	}, decodeDevice, handler)
	return p
}

func (p *DeviceManagerServiceProxy) UpdateState(ctx context.Context, token, state string,
	handler Handler[string]) DeviceManagerService {
	invoke(ctx, &p.Proxy, ActionUpdateState, map[string]any{
		"token": token,
		"state": state,
	}, decodeString, handler)
	return p
}

func (p *DeviceManagerServiceProxy) SetState(ctx context.Context, deviceID, desired string,
	handler Handler[struct{}]) DeviceManagerService {
	invoke(ctx, &p.Proxy, ActionSetState, map[string]any{
		"deviceId": deviceID,
		"desired":  desired,
	}, decodeNothing, handler)
	return p
}

func (p *DeviceManagerServiceProxy) GetState(ctx context.Context, deviceID string,
	handler Handler[string]) DeviceManagerService {
	invoke(ctx, &p.Proxy, ActionGetState, map[string]any{
		"deviceId": deviceID,
	}, decodeString, handler)
	return p
}
