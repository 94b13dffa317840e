package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/JobsHwang/LinkIOT/device"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/eventbus/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func expectFailureCodec(bus *mocks.MockClient, err error) {
	bus.EXPECT().
		RegisterDefaultCodec(reflect.TypeOf(&ServiceError{}), ServiceErrorCodec{}).
		Return(err)
}

func TestDataHandleServiceProxy_Handle(t *testing.T) {
	testCases := []struct {
		name     string
		dev      *device.Info
		sensorID int
		data     map[string]any
		wantBody map[string]any
		reply    any
		replyErr error
		wantRes  map[string]any
		wantErr  error
	}{
		{
			name:     "no device",
			sensorID: 1,
			data:     map[string]any{"temp": 21},
			wantBody: map[string]any{
				"device":   nil,
				"sensorId": 1,
				"data":     map[string]any{"temp": 21},
			},
			reply:   map[string]any{"ok": true},
			wantRes: map[string]any{"ok": true},
		},
		{
			name: "with device",
			dev: &device.Info{
				ID:      "d1",
				Name:    "lamp",
				State:   device.StatusOn,
				Token:   "t1",
				Sensors: []device.Sensor{{ID: 2, DataType: "int"}},
			},
			sensorID: 2,
			data:     map[string]any{"v": 3},
			wantBody: map[string]any{
				"device": map[string]any{
					"id":      "d1",
					"name":    "lamp",
					"state":   1,
					"token":   "t1",
					"config":  map[string]any(nil),
					"sensors": []any{map[string]any{"id": 2, "datatype": "int"}},
				},
				"sensorId": 2,
				"data":     map[string]any{"v": 3},
			},
			wantRes: nil,
		},
		{
			name:     "nil data",
			sensorID: 3,
			wantBody: map[string]any{
				"device":   nil,
				"sensorId": 3,
				"data":     nil,
			},
		},
		{
			name:     "bus failure",
			sensorID: 1,
			wantBody: map[string]any{
				"device":   nil,
				"sensorId": 1,
				"data":     nil,
			},
			replyErr: eventbus.NewNoHandlersError("data.handle"),
			wantErr:  eventbus.NewNoHandlersError("data.handle"),
		},
		{
			name:     "unexpected reply",
			sensorID: 1,
			wantBody: map[string]any{
				"device":   nil,
				"sensorId": 1,
				"data":     nil,
			},
			reply:   "hello",
			wantErr: fmt.Errorf("%w: string", ErrUnexpectedReply),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			bus := mocks.NewMockClient(ctrl)
			expectFailureCodec(bus, nil)
			bus.EXPECT().
				Request(gomock.Any(), "data.handle", tc.wantBody, gomock.Any(), gomock.Any()).
				DoAndReturn(func(ctx context.Context, address string, body any,
					opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
					assert.Equal(t, map[string]string{HeaderAction: ActionHandle}, opts.Headers)
					if tc.replyErr != nil {
						handler(nil, tc.replyErr)
						return
					}
					handler(eventbus.NewMessage(address, nil, tc.reply, nil), nil)
				}).Times(1)

			p := NewDataHandleServiceProxy(bus, "data.handle")
			called := 0
			res := p.Handle(context.Background(), tc.dev, tc.sensorID, tc.data,
				func(result map[string]any, err error) {
					called++
					assert.Equal(t, tc.wantErr, err)
					assert.Equal(t, tc.wantRes, result)
				})
			assert.Same(t, p, res)
			assert.Equal(t, 1, called)
		})
	}
}

func TestProxy_Closed(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := mocks.NewMockClient(ctrl)
	expectFailureCodec(bus, nil)
	p := NewDataHandleServiceProxy(bus, "data.handle")
	p.Close()
	assert.True(t, p.Closed())

	var gotErr error
	called := false
	p.Handle(context.Background(), nil, 1, map[string]any{"temp": 21}, func(result map[string]any, err error) {
		called = true
		gotErr = err
		assert.Nil(t, result)
	})
	// the handler ran before Handle returned
	assert.True(t, called)
	assert.Equal(t, ErrProxyClosed, gotErr)
	assert.Equal(t, "Proxy is closed", gotErr.Error())
}

func TestProxy_CloseKeepsInFlightCalls(t *testing.T) {
	bus := eventbus.New()
	arrived := make(chan struct{})
	release := make(chan struct{})
	RegisterDataHandleService(bus, "data.handle", handleFunc(
		func(ctx context.Context, d *device.Info, sensorID int, data map[string]any,
			handler Handler[map[string]any]) {
			close(arrived)
			<-release
			handler(data, nil)
		}))
	p := NewDataHandleServiceProxy(bus, "data.handle",
		WithDeliveryOptions(eventbus.NewDeliveryOptions().SetSendTimeout(time.Second)))

	h, ch := await[map[string]any]()
	p.Handle(context.Background(), nil, 1, map[string]any{"temp": 21}, h)
	select {
	case <-arrived:
	case <-time.After(time.Second):
		t.Fatal("request never reached the consumer")
	}
	p.Close()
	close(release)

	res := receive(t, ch)
	require.NoError(t, res.err)
	assert.Equal(t, map[string]any{"temp": 21}, res.val)

	h, ch = await[map[string]any]()
	p.Handle(context.Background(), nil, 1, nil, h)
	assert.Equal(t, ErrProxyClosed, receive(t, ch).err)
}

func TestProxy_FailurePassedThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := mocks.NewMockClient(ctrl)
	expectFailureCodec(bus, nil)
	failure := NewServiceError(42, "boom")
	bus.EXPECT().Request(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, address string, body any,
			opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
			handler(nil, failure)
		})

	p := NewDeviceManagerServiceProxy(bus, "device.manager")
	p.GetState(context.Background(), "d1", func(state string, err error) {
		assert.Same(t, failure, err)
		assert.Equal(t, "", state)
	})
}

func TestProxy_DeliveryOptionsNotShared(t *testing.T) {
	ctrl := gomock.NewController(t)
	bus := mocks.NewMockClient(ctrl)
	expectFailureCodec(bus, nil)

	defaults := eventbus.NewDeliveryOptions().AddHeader("tenant", "t1")
	var sent []*eventbus.DeliveryOptions
	bus.EXPECT().Request(gomock.Any(), "device.manager", gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, address string, body any,
			opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
			sent = append(sent, opts)
			handler(eventbus.NewMessage(address, nil, nil, nil), nil)
		}).Times(2)

	p := NewDeviceManagerServiceProxy(bus, "device.manager", WithDeliveryOptions(defaults))
	p.Logout(context.Background(), "t", nil).
		GetState(context.Background(), "d1", nil)

	require.Len(t, sent, 2)
	assert.Equal(t, map[string]string{"tenant": "t1", HeaderAction: ActionLogout}, sent[0].Headers)
	assert.Equal(t, map[string]string{"tenant": "t1", HeaderAction: ActionGetState}, sent[1].Headers)
	assert.NotSame(t, sent[0], sent[1])
	assert.Equal(t, map[string]string{"tenant": "t1"}, defaults.Headers)
	assert.Equal(t, map[string]string{"tenant": "t1"}, p.options.Headers)
}

func TestProxy_FailureCodecAlreadyRegistered(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{
			name: "first",
		},
		{
			name: "already registered",
			err:  fmt.Errorf("%w: *service.ServiceError", eventbus.ErrCodecAlreadyRegistered),
		},
		{
			name: "other error",
			err:  errors.New("mock error"),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			bus := mocks.NewMockClient(ctrl)
			expectFailureCodec(bus, tc.err)
			p := NewDataHandleServiceProxy(bus, "data.handle")
			assert.NotNil(t, p)
			assert.Equal(t, "data.handle", p.Address())
		})
	}
}

func TestDeviceManagerServiceProxy_Envelopes(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name       string
		call       func(p *DeviceManagerServiceProxy)
		wantAction string
		wantBody   map[string]any
	}{
		{
			name: "login",
			call: func(p *DeviceManagerServiceProxy) {
				p.Login(ctx, "d1", "s1", nil)
			},
			wantAction: ActionLogin,
			wantBody:   map[string]any{"id": "d1", "secret": "s1"},
		},
		{
			name: "logout",
			call: func(p *DeviceManagerServiceProxy) {
				p.Logout(ctx, "t1", nil)
			},
			wantAction: ActionLogout,
			wantBody:   map[string]any{"token": "t1"},
		},
		{
			name: "get device by token",
			call: func(p *DeviceManagerServiceProxy) {
				p.GetDeviceByToken(ctx, "t1", nil)
			},
			wantAction: ActionGetDeviceByToken,
			wantBody:   map[string]any{"token": "t1"},
		},
		{
			name: "update state",
			call: func(p *DeviceManagerServiceProxy) {
				p.UpdateState(ctx, "t1", "on", nil)
			},
			wantAction: ActionUpdateState,
			wantBody:   map[string]any{"token": "t1", "state": "on"},
		},
		{
			name: "set state",
			call: func(p *DeviceManagerServiceProxy) {
				p.SetState(ctx, "d1", "off", nil)
			},
			wantAction: ActionSetState,
			wantBody:   map[string]any{"deviceId": "d1", "desired": "off"},
		},
		{
			name: "get state",
			call: func(p *DeviceManagerServiceProxy) {
				p.GetState(ctx, "d1", nil)
			},
			wantAction: ActionGetState,
			wantBody:   map[string]any{"deviceId": "d1"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			bus := mocks.NewMockClient(ctrl)
			expectFailureCodec(bus, nil)
			bus.EXPECT().Request(gomock.Any(), "device.manager", tc.wantBody, gomock.Any(), gomock.Any()).
				DoAndReturn(func(ctx context.Context, address string, body any,
					opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
					assert.Equal(t, tc.wantAction, opts.Header(HeaderAction))
					handler(eventbus.NewMessage(address, nil, nil, nil), nil)
				})
			tc.call(NewDeviceManagerServiceProxy(bus, "device.manager"))
		})
	}
}
