package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	linkiot "github.com/JobsHwang/LinkIOT"
	"github.com/JobsHwang/LinkIOT/eventbus"
	"github.com/JobsHwang/LinkIOT/internal/config"
	"github.com/JobsHwang/LinkIOT/internal/gateway"
	"github.com/JobsHwang/LinkIOT/internal/logging"
	"github.com/JobsHwang/LinkIOT/registry/etcd"
	"github.com/JobsHwang/LinkIOT/service"
	"github.com/gotomicro/ekit/bean/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	path := flag.String("config", "linkgateway.toml", "path of the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	if err = run(cfg, logger); err != nil {
		logger.Fatal("linkgateway: stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = etcdClient.Close()
	}()
	r, err := etcd.NewRegistry(etcdClient, cfg.Etcd.TTL, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()

	client, err := newClient(cfg, r, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	devices, err := client.DeviceManagerService(ctx, cfg.Services.DeviceManager)
	if err != nil {
		return err
	}
	data, err := client.DataHandleService(ctx, cfg.Services.DataHandle)
	if err != nil {
		return err
	}

	gw := gateway.New(devices, data,
		gateway.WithBodyLimit(cfg.Gateway.BodyLimit),
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithGroup(cfg.Node.Group),
		gateway.WithLogger(logger),
		gateway.WithRegisterer(prometheus.DefaultRegisterer))
	servers := []*http.Server{{Addr: cfg.Gateway.Addr, Handler: gw.Handler()}}
	if cfg.Gateway.MetricsAddr != "" {
		servers = append(servers, &http.Server{Addr: cfg.Gateway.MetricsAddr, Handler: promhttp.Handler()})
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		eg.Go(func() error {
			logger.Info("linkgateway: listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return eg.Wait()
}

func newClient(cfg *config.Config, r *etcd.Registry, logger *zap.Logger) (*linkiot.Client, error) {
	builder, err := pickerBuilder(cfg.Services.Balancer)
	if err != nil {
		return nil, err
	}
	rpcOpts, err := rpcOptions(cfg.Delivery)
	if err != nil {
		return nil, err
	}
	opts := []option.Option[linkiot.Client]{
		linkiot.ClientWithTimeout(cfg.Etcd.Timeout),
		linkiot.ClientWithPickerBuilder(builder),
		linkiot.ClientWithRPCOptions(rpcOpts...),
		linkiot.ClientWithProxyOptions(
			service.WithDeliveryOptions(eventbus.NewDeliveryOptions().SetSendTimeout(cfg.Delivery.SendTimeout)),
			service.WithLogger(logger)),
		linkiot.ClientWithLogger(logger),
	}
	if cfg.Delivery.Tracing {
		opts = append(opts, linkiot.ClientWithTracing(nil, nil))
	}
	return linkiot.NewClient(r, opts...), nil
}
