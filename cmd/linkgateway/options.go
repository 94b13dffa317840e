package main

import (
	"fmt"

	"github.com/JobsHwang/LinkIOT/internal/config"
	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/loadbalance/leastactive"
	"github.com/JobsHwang/LinkIOT/loadbalance/random"
	"github.com/JobsHwang/LinkIOT/loadbalance/roundrobin"
	"github.com/JobsHwang/LinkIOT/rpc"
	"github.com/JobsHwang/LinkIOT/rpc/compress"
	"github.com/JobsHwang/LinkIOT/rpc/compress/gzip"
	"github.com/JobsHwang/LinkIOT/rpc/compress/lz4"
	"github.com/JobsHwang/LinkIOT/rpc/compress/snappy"
	"github.com/JobsHwang/LinkIOT/rpc/compress/zlib"
	"github.com/JobsHwang/LinkIOT/rpc/serialize"
	"github.com/JobsHwang/LinkIOT/rpc/serialize/json"
	"github.com/JobsHwang/LinkIOT/rpc/serialize/proto"
	"github.com/gotomicro/ekit/bean/option"
)

func pickerBuilder(name string) (loadbalance.PickerBuilder, error) {
	switch name {
	case config.BalancerRoundRobin:
		return &roundrobin.PickerBuilder{Filter: loadbalance.GroupFilter}, nil
	case config.BalancerWeightRoundRobin:
		return &roundrobin.WeightPickerBuilder{Filter: loadbalance.GroupFilter}, nil
	case config.BalancerRandom:
		return &random.PickerBuilder{Filter: loadbalance.GroupFilter}, nil
	case config.BalancerWeightRandom:
		return &random.WeightPickerBuilder{Filter: loadbalance.GroupFilter}, nil
	case config.BalancerLeastActive:
		return &leastactive.PickerBuilder{Filter: loadbalance.GroupFilter}, nil
	default:
		return nil, fmt.Errorf("linkgateway: unknown balancer %q", name)
	}
}

func rpcOptions(cfg config.Delivery) ([]option.Option[rpc.Client], error) {
	var s serialize.Serializer
	switch cfg.Serializer {
	case "json":
		s = json.Serializer{}
	case "proto":
		s = proto.Serializer{}
	default:
		return nil, fmt.Errorf("linkgateway: unknown serializer %q", cfg.Serializer)
	}
	var c compress.Compressor
	switch cfg.Compressor {
	case "none":
		c = compress.DoNothingCompressor{}
	case "gzip":
		c = gzip.Compressor{}
	case "lz4":
		c = lz4.Compressor{}
	case "snappy":
		c = snappy.Compressor{}
	case "zlib":
		c = zlib.Compressor{}
	default:
		return nil, fmt.Errorf("linkgateway: unknown compressor %q", cfg.Compressor)
	}
	return []option.Option[rpc.Client]{rpc.ClientWithSerializer(s), rpc.ClientWithCompressor(c)}, nil
}
