package service

import (
	"context"

	"github.com/JobsHwang/LinkIOT/device"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/gotomicro/ekit/bean/option"
)

var _ DataHandleService = (*DataHandleServiceProxy)(nil)

// DataHandleServiceProxy calls a DataHandleService bound to an address.
type DataHandleServiceProxy struct {
	Proxy
}

func NewDataHandleServiceProxy(bus eventbus.Client, address string,
	opts ...option.Option[Proxy]) *DataHandleServiceProxy {
	res := &DataHandleServiceProxy{}
	res.init(bus, address, opts)
	return res
}

func (p *DataHandleServiceProxy) Handle(ctx context.Context, dev *device.Info, sensorID int,
	data map[string]any, handler Handler[map[string]any]) DataHandleService {
	invoke(ctx, &p.Proxy, ActionHandle, map[string]any{
		"device":   deviceJSON(dev),
		"sensorId": sensorID,
		"data":     mapJSON(data),
	}, decodeMap, handler)
	return p
}
