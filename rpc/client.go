package rpc

import (
	"context"
	"errors"
	"net"
	"reflect"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/internal/errs"
	"github.com/JobsHwang/LinkIOT/rpc/compress"
	"github.com/JobsHwang/LinkIOT/rpc/message"
	"github.com/JobsHwang/LinkIOT/rpc/serialize"
	"github.com/JobsHwang/LinkIOT/rpc/serialize/json"
	"github.com/JobsHwang/LinkIOT/rpc/tcp"
	"github.com/gotomicro/ekit/bean/option"
	"github.com/silenceper/pool"
	"go.uber.org/zap"
)

var _ eventbus.Client = (*Client)(nil)

// metaSendTimeout carries the send timeout in milliseconds
const metaSendTimeout = "send-timeout"

// messageId
var messageId uint32 = 0

// Client -> eventbus.Client backed by pooled tcp connections to a Server.
// A connection carries one request at a time.
type Client struct {
	connPool   pool.Pool
	poolConfig *pool.Config
	serializer serialize.Serializer
	compressor compress.Compressor
	codecs     *eventbus.Codecs
	logger     *zap.Logger
}

// ClientWithSerializer -> option
func ClientWithSerializer(s serialize.Serializer) option.Option[Client] {
	return func(client *Client) {
		client.serializer = s
	}
}

// ClientWithCompressor -> option
func ClientWithCompressor(c compress.Compressor) option.Option[Client] {
	return func(client *Client) {
		client.compressor = c
	}
}

// ClientWithPool -> connection pool capacities
func ClientWithPool(initialCap, maxIdle, maxCap int) option.Option[Client] {
	return func(client *Client) {
		client.poolConfig.InitialCap = initialCap
		client.poolConfig.MaxIdle = maxIdle
		client.poolConfig.MaxCap = maxCap
	}
}

func ClientWithLogger(logger *zap.Logger) option.Option[Client] {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient -> create Client
func NewClient(address string, opts ...option.Option[Client]) (*Client, error) {
	client := &Client{
		poolConfig: &pool.Config{
			InitialCap: 1,
			MaxIdle:    20,
			MaxCap:     30,
			Factory: func() (interface{}, error) {
				return net.Dial("tcp", address)
			},
			Close: func(i interface{}) error {
				return i.(net.Conn).Close()
			},
			IdleTimeout: time.Minute,
		},
		serializer: json.Serializer{},
		// 避免 nil 检测
		compressor: compress.DoNothingCompressor{},
		codecs:     eventbus.NewCodecs(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	connPool, err := pool.NewChannelPool(client.poolConfig)
	if err != nil {
		return nil, err
	}
	client.connPool = connPool
	return client, nil
}

func (c *Client) RegisterDefaultCodec(typ reflect.Type, codec eventbus.MessageCodec) error {
	return c.codecs.RegisterDefault(typ, codec)
}

func (c *Client) RegisterCodec(codec eventbus.MessageCodec) error {
	return c.codecs.Register(codec)
}

// Request sends body to address on the remote bus. handler runs on its own
// goroutine once the reply, a failure or the send timeout arrives.
// Only headers cross the connection; values stored in ctx do not. A ctx that
// is already done fails the request with ctx.Err() before anything is sent.
func (c *Client) Request(ctx context.Context, address string, body any, opts *eventbus.DeliveryOptions, handler eventbus.ReplyHandler) {
	if opts == nil {
		opts = eventbus.NewDeliveryOptions()
	}
	go func() {
		var reply *eventbus.Message
		err := ctx.Err()
		if err == nil {
			reply, err = c.invoke(address, body, opts)
		}
		if handler != nil {
			handler(reply, err)
		}
	}()
}

func (c *Client) invoke(address string, body any, opts *eventbus.DeliveryOptions) (*eventbus.Message, error) {
	req, err := c.newRequest(address, body, opts)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout()
	resp, err := c.doInvoke(message.EncodeReq(req), time.Now().Add(timeout))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, eventbus.NewTimeoutError(address, timeout)
		}
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, c.decodeFailure(resp)
	}
	replyBody, err := c.decodeBody(resp)
	if err != nil {
		return nil, err
	}
	return eventbus.NewMessage(address, nil, replyBody, nil), nil
}

func (c *Client) newRequest(address string, body any, opts *eventbus.DeliveryOptions) (*message.Request, error) {
	var (
		data      []byte
		codecName string
	)
	codec, ok, err := c.codecs.Lookup(body, opts.CodecName)
	if err != nil {
		return nil, err
	}
	if ok {
		codecName = codec.Name()
		data, err = codec.Encode(body)
	} else {
		data, err = c.serializer.Encode(body)
	}
	if err != nil {
		return nil, err
	}
	data, err = c.compressor.Compress(data)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		meta[k] = v
	}
	meta[metaSendTimeout] = strconv.FormatInt(opts.Timeout().Milliseconds(), 10)
	req := &message.Request{
		MessageId:  atomic.AddUint32(&messageId, 1),
		Compresser: c.compressor.Code(),
		Serializer: c.serializer.Code(),
		Address:    address,
		Codec:      codecName,
		Meta:       meta,
		Data:       data,
	}
	// calculate and set the request head length
	req.CalculateHeaderLength()
	// calculate and set the request body length
	req.CalculateBodyLength()
	return req, nil
}

// doInvoke -> write one frame and read its response on a pooled connection
func (c *Client) doInvoke(encode []byte, deadline time.Time) (*message.Response, error) {
	val, err := c.connPool.Get()
	if err != nil {
		return nil, errs.ClientConnDeaded(err)
	}
	conn := val.(net.Conn)
	// a connection that failed midway may still receive a stale reply
	discard := func(err error) (*message.Response, error) {
		c.logger.Debug("rpc: discarding connection", zap.Error(err))
		_ = c.connPool.Close(val)
		return nil, err
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return discard(err)
	}
	n, err := conn.Write(encode)
	if err != nil {
		return discard(err)
	}
	if n != len(encode) {
		return discard(errs.ClientNotAllWritten)
	}
	data, err := tcp.ReadMsg(conn)
	if err != nil {
		return discard(err)
	}
	resp, err := message.DecodeResp(data)
	if err != nil {
		return discard(err)
	}
	_ = conn.SetDeadline(time.Time{})
	_ = c.connPool.Put(val)
	return resp, nil
}

func (c *Client) decodeBody(resp *message.Response) (any, error) {
	if len(resp.Data) == 0 {
		return nil, nil
	}
	data, err := c.compressor.Uncompress(resp.Data)
	if err != nil {
		return nil, err
	}
	if resp.Codec != "" {
		codec, err := c.codecs.ByName(resp.Codec)
		if err != nil {
			return nil, err
		}
		return codec.Decode(data)
	}
	var body any
	err = c.serializer.Decode(data, &body)
	return body, err
}

func (c *Client) decodeFailure(resp *message.Response) error {
	if resp.Codec != "" {
		codec, err := c.codecs.ByName(resp.Codec)
		if err != nil {
			return err
		}
		val, err := codec.Decode(resp.Error)
		if err != nil {
			return err
		}
		if res, ok := val.(error); ok {
			return res
		}
	}
	replyErr := &eventbus.ReplyError{}
	if err := (json.Serializer{}).Decode(resp.Error, replyErr); err != nil {
		return eventbus.NewReplyError(eventbus.FailureRecipient, -1, string(resp.Error))
	}
	return replyErr
}

// Close -> release all pooled connections
func (c *Client) Close() error {
	c.connPool.Release()
	return nil
}
