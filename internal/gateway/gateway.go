// Package gateway is the HTTP front door devices talk to. Every request is
// forwarded to the device manager and data handling services.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/JobsHwang/LinkIOT/device"
	"github.com/JobsHwang/LinkIOT/internal/value"
	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/service"
	"github.com/gin-gonic/gin"
	"github.com/gotomicro/ekit/bean/option"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	CodeFailed      = -1
	CodeOK          = 1
	CodeNeedsUpdate = 2
)

const (
	msgLoginOK     = "login succeeded"
	msgLogoutOK    = "logout succeeded"
	msgStateOK     = "state updated"
	msgNeedsUpdate = "state needs update"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errNotObject    = errors.New("request body must be a JSON object")
	errTimeout      = errors.New("service did not answer in time")
)

type Gateway struct {
	devices   service.DeviceManagerService
	data      service.DataHandleService
	bodyLimit int64
	timeout   time.Duration
	group     string
	logger    *zap.Logger
	requests  *prometheus.CounterVec
}

func WithBodyLimit(limit int64) option.Option[Gateway] {
	return func(g *Gateway) {
		g.bodyLimit = limit
	}
}

// WithTimeout bounds the wait for a service answer.
func WithTimeout(timeout time.Duration) option.Option[Gateway] {
	return func(g *Gateway) {
		g.timeout = timeout
	}
}

// WithGroup sends every call to instances of group.
func WithGroup(group string) option.Option[Gateway] {
	return func(g *Gateway) {
		g.group = group
	}
}

func WithLogger(logger *zap.Logger) option.Option[Gateway] {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithRegisterer counts requests per route and response code on r.
func WithRegisterer(r prometheus.Registerer) option.Option[Gateway] {
	return func(g *Gateway) {
		g.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkiot",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP requests by route and response code",
		}, []string{"route", "code"})
		r.MustRegister(g.requests)
	}
}

func New(devices service.DeviceManagerService, data service.DataHandleService,
	opts ...option.Option[Gateway]) *Gateway {
	res := &Gateway{
		devices:   devices,
		data:      data,
		bodyLimit: 100 * 1024,
		timeout:   time.Second * 30,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Handler routes:
//
//	GET  /api/auth/login/:id/:secret
//	GET  /api/auth/logout/:token
//	POST /api/data/:token
//	POST /api/state/:token
func (g *Gateway) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		g.logger.Error("gateway: handler panicked", zap.String("path", c.Request.URL.Path), zap.Any("panic", err))
		c.AbortWithStatus(http.StatusInternalServerError)
	}), g.observe)
	router.GET("/api/auth/login/:id/:secret", g.login)
	router.GET("/api/auth/logout/:token", g.logout)
	router.POST("/api/data/:token", g.handleData)
	router.POST("/api/state/:token", g.updateState)
	return router
}

const codeKey = "linkiot.code"

func (g *Gateway) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	code, _ := c.Get(codeKey)
	codeStr := "none"
	if v, ok := code.(int); ok {
		codeStr = strconv.Itoa(v)
	}
	if g.requests != nil {
		g.requests.WithLabelValues(c.FullPath(), codeStr).Inc()
	}
	g.logger.Debug("gateway: request served",
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()),
		zap.String("code", codeStr),
		zap.Duration("latency", time.Since(start)))
}

func (g *Gateway) login(c *gin.Context) {
	token, err := call(g, c, func(ctx context.Context, handler service.Handler[string]) {
		g.devices.Login(ctx, c.Param("id"), c.Param("secret"), handler)
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, CodeOK, msgLoginOK, "token", token)
}

func (g *Gateway) logout(c *gin.Context) {
	_, err := call(g, c, func(ctx context.Context, handler service.Handler[struct{}]) {
		g.devices.Logout(ctx, c.Param("token"), handler)
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, CodeOK, msgLogoutOK, "", nil)
}

func (g *Gateway) handleData(c *gin.Context) {
	raw, err := g.readBody(c)
	if err != nil {
		fail(c, err)
		return
	}
	body, err := decodeObject(raw)
	if err != nil {
		fail(c, err)
		return
	}
	sensorID, err := value.Int(body["sensorid"])
	if err != nil {
		fail(c, err)
		return
	}
	dev, err := call(g, c, func(ctx context.Context, handler service.Handler[*device.Info]) {
		g.devices.GetDeviceByToken(ctx, c.Param("token"), handler)
	})
	if err != nil {
		fail(c, err)
		return
	}
	res, err := call(g, c, func(ctx context.Context, handler service.Handler[map[string]any]) {
		g.data.Handle(ctx, dev, sensorID, body, handler)
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, CodeOK, "OK", "data", res)
}

// updateState forwards the compacted JSON body as the reported state.
func (g *Gateway) updateState(c *gin.Context) {
	raw, err := g.readBody(c)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err = decodeObject(raw); err != nil {
		fail(c, err)
		return
	}
	var state bytes.Buffer
	if err = json.Compact(&state, raw); err != nil {
		fail(c, err)
		return
	}
	desired, err := call(g, c, func(ctx context.Context, handler service.Handler[string]) {
		g.devices.UpdateState(ctx, c.Param("token"), state.String(), handler)
	})
	if err != nil {
		fail(c, err)
		return
	}
	if desired == "" {
		respond(c, CodeOK, msgStateOK, "", nil)
		return
	}
	respond(c, CodeNeedsUpdate, msgNeedsUpdate, "state", desired)
}

func (g *Gateway) readBody(c *gin.Context) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, g.bodyLimit))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, errBodyTooLarge
	}
	return data, err
}

func decodeObject(data []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var res map[string]any
	if err := decoder.Decode(&res); err != nil || res == nil {
		return nil, errNotObject
	}
	return res, nil
}

// call waits for the single answer of a service call, bounded by the
// gateway timeout and the request context.
func call[T any](g *Gateway, c *gin.Context, invoke func(ctx context.Context, handler service.Handler[T])) (T, error) {
	type result struct {
		val T
		err error
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), g.timeout)
	defer cancel()
	if g.group != "" {
		ctx = loadbalance.WithGroup(ctx, g.group)
	}
	ch := make(chan result, 1)
	invoke(ctx, func(val T, err error) {
		ch <- result{val: val, err: err}
	})
	select {
	case res := <-ch:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, errTimeout
	}
}

func fail(c *gin.Context, err error) {
	respond(c, CodeFailed, err.Error(), "", nil)
}

func respond(c *gin.Context, code int, msg string, key string, val any) {
	c.Set(codeKey, code)
	body := gin.H{"code": code, "msg": msg}
	if key != "" {
		body[key] = val
	}
	c.JSON(http.StatusOK, body)
}
