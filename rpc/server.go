package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/internal/errs"
	"github.com/JobsHwang/LinkIOT/rpc/compress"
	"github.com/JobsHwang/LinkIOT/rpc/compress/gzip"
	"github.com/JobsHwang/LinkIOT/rpc/compress/lz4"
	"github.com/JobsHwang/LinkIOT/rpc/compress/snappy"
	"github.com/JobsHwang/LinkIOT/rpc/compress/zlib"
	"github.com/JobsHwang/LinkIOT/rpc/message"
	"github.com/JobsHwang/LinkIOT/rpc/serialize"
	"github.com/JobsHwang/LinkIOT/rpc/serialize/json"
	"github.com/JobsHwang/LinkIOT/rpc/serialize/proto"
	"github.com/JobsHwang/LinkIOT/rpc/tcp"
	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// Server -> bridges tcp frames into a local EventBus
type Server struct {
	listener    net.Listener
	bus         *eventbus.EventBus
	serializers []serialize.Serializer
	compressors []compress.Compressor
	maxConns    int
	closed      atomic.Bool
	logger      *zap.Logger
}

// ServerWithMaxConns -> cap the number of concurrently served connections
func ServerWithMaxConns(n int) option.Option[Server] {
	return func(s *Server) {
		s.maxConns = n
	}
}

func ServerWithLogger(logger *zap.Logger) option.Option[Server] {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer instance
func NewServer(bus *eventbus.EventBus, opts ...option.Option[Server]) *Server {
	res := &Server{
		bus: bus,
		// 一个字节，最多有 256 个实现，直接做成一个简单的 bit array 的东西
		serializers: make([]serialize.Serializer, 256),
		compressors: make([]compress.Compressor, 256),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(res)
	}
	res.RegisterSerializer(json.Serializer{})
	res.RegisterSerializer(proto.Serializer{})
	res.RegisterCompressor(compress.DoNothingCompressor{})
	res.RegisterCompressor(gzip.Compressor{})
	res.RegisterCompressor(lz4.Compressor{})
	res.RegisterCompressor(snappy.Compressor{})
	res.RegisterCompressor(zlib.Compressor{})
	return res
}

// RegisterSerializer -> register serializer
func (s *Server) RegisterSerializer(serializer serialize.Serializer) {
	s.serializers[serializer.Code()] = serializer
}

// RegisterCompressor -> register compressor
func (s *Server) RegisterCompressor(compressor compress.Compressor) {
	s.compressors[compressor.Code()] = compressor
}

// Start -> listen on address and serve until Close
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve -> serve connections accepted by listener until Close
func (s *Server) Serve(listener net.Listener) error {
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}
	s.listener = listener
	for {
		conn, err := listener.Accept()
		if s.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			s.logger.Warn("rpc: accept connection got error", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

// Close -> close net.Listener
func (s *Server) Close() error {
	s.closed.Store(true)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// handleConn -> serve frames of one connection in order
func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	for {
		bs, err := tcp.ReadMsg(conn)
		if err == io.EOF {
			return
		}
		if err != nil {
			s.logger.Debug("rpc: reading request failed", zap.Error(err))
			return
		}
		req, err := message.DecodeReq(bs)
		if err != nil {
			// the stream cannot be resynchronised after a bad frame
			s.logger.Warn("rpc: dropping connection", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			return
		}
		resp := s.Invoke(context.Background(), req)
		// calculate and set the response head length
		resp.CalculateHeaderLength()
		// calculate and set the response body length
		resp.CalculateBodyLength()
		if _, err = conn.Write(message.EncodeResp(resp)); err != nil {
			s.logger.Warn("rpc: sending response failed", zap.Error(err))
			return
		}
	}
}

// Invoke -> deliver req on the bus and wait for its outcome
func (s *Server) Invoke(ctx context.Context, req *message.Request) *message.Response {
	resp := &message.Response{
		Version:    req.Version,
		Compresser: req.Compresser,
		Serializer: req.Serializer,
		MessageId:  req.MessageId,
	}
	serializer := s.serializers[req.Serializer]
	if serializer == nil {
		s.fail(resp, errs.SerializerNotFound(req.Serializer))
		return resp
	}
	compressor := s.compressors[req.Compresser]
	if compressor == nil {
		s.fail(resp, errs.CompressorNotFound(req.Compresser))
		return resp
	}
	body, err := s.decodeBody(req, serializer, compressor)
	if err != nil {
		s.fail(resp, err)
		return resp
	}

	opts := eventbus.NewDeliveryOptions()
	for k, v := range req.Meta {
		if k == metaSendTimeout {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				opts.SetSendTimeout(time.Duration(ms) * time.Millisecond)
			}
			continue
		}
		opts.AddHeader(k, v)
	}

	done := make(chan struct{})
	s.bus.Request(ctx, req.Address, body, opts, func(reply *eventbus.Message, err error) {
		defer close(done)
		if err != nil {
			s.fail(resp, err)
			return
		}
		if err = s.encodeBody(resp, reply.Body(), serializer, compressor); err != nil {
			s.fail(resp, err)
		}
	})
	<-done
	return resp
}

func (s *Server) decodeBody(req *message.Request, serializer serialize.Serializer,
	compressor compress.Compressor) (any, error) {
	if len(req.Data) == 0 {
		return nil, nil
	}
	data, err := compressor.Uncompress(req.Data)
	if err != nil {
		return nil, err
	}
	if req.Codec != "" {
		codec, err := s.bus.Codecs().ByName(req.Codec)
		if err != nil {
			return nil, err
		}
		return codec.Decode(data)
	}
	var body any
	err = serializer.Decode(data, &body)
	return body, err
}

func (s *Server) encodeBody(resp *message.Response, body any, serializer serialize.Serializer,
	compressor compress.Compressor) error {
	var (
		data []byte
		err  error
	)
	codec, ok, _ := s.bus.Codecs().Lookup(body, "")
	if ok {
		resp.Codec = codec.Name()
		data, err = codec.Encode(body)
	} else {
		data, err = serializer.Encode(body)
	}
	if err != nil {
		return err
	}
	resp.Data, err = compressor.Compress(data)
	return err
}

// fail -> encode err as the response failure; types with a registered
// default codec are encoded with it so the client gets them back typed
func (s *Server) fail(resp *message.Response, err error) {
	resp.Data = nil
	resp.Codec = ""
	codec, ok, _ := s.bus.Codecs().Lookup(err, "")
	if ok {
		if data, er := codec.Encode(err); er == nil {
			resp.Codec = codec.Name()
			resp.Error = data
			return
		}
	}
	var replyErr *eventbus.ReplyError
	if !errors.As(err, &replyErr) {
		replyErr = eventbus.NewReplyError(eventbus.FailureRecipient, -1, err.Error())
	}
	data, er := json.Serializer{}.Encode(replyErr)
	if er != nil {
		data = []byte(err.Error())
	}
	resp.Error = data
}
