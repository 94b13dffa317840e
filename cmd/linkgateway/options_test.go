package main

import (
	"testing"

	"github.com/JobsHwang/LinkIOT/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickerBuilder(t *testing.T) {
	for _, name := range []string{
		config.BalancerRoundRobin,
		config.BalancerWeightRoundRobin,
		config.BalancerRandom,
		config.BalancerWeightRandom,
		config.BalancerLeastActive,
	} {
		builder, err := pickerBuilder(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, builder.Name())
	}
	_, err := pickerBuilder("p2c")
	assert.Error(t, err)
}

func TestRPCOptions(t *testing.T) {
	opts, err := rpcOptions(config.Default().Delivery)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	_, err = rpcOptions(config.Delivery{Serializer: "json", Compressor: "brotli"})
	assert.Error(t, err)
	_, err = rpcOptions(config.Delivery{Serializer: "xml", Compressor: "none"})
	assert.Error(t, err)
}
