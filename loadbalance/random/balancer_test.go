package random

import (
	"context"
	"testing"

	"github.com/JobsHwang/LinkIOT/loadbalance"
	"github.com/JobsHwang/LinkIOT/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var instances = []registry.ServiceInstance{
	{Endpoint: "10.0.0.1:8081", Group: "A", Weight: 3},
	{Endpoint: "10.0.0.2:8081", Group: "B"},
	{Endpoint: "10.0.0.3:8081", Group: "A", Weight: 1},
}

func TestPickers(t *testing.T) {
	testCases := []struct {
		name    string
		builder loadbalance.PickerBuilder
	}{
		{
			name:    "random",
			builder: &PickerBuilder{Filter: loadbalance.GroupFilter},
		},
		{
			name:    "weight random",
			builder: &WeightPickerBuilder{Filter: loadbalance.GroupFilter},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.builder.Build(instances)
			ctx := loadbalance.WithGroup(context.Background(), "A")
			seen := map[string]int{}
			for i := 0; i < 200; i++ {
				res, err := p.Pick(loadbalance.PickInfo{Ctx: ctx})
				require.NoError(t, err)
				seen[res.Instance.Endpoint]++
			}
			assert.NotContains(t, seen, "10.0.0.2:8081")
			assert.Len(t, seen, 2)

			_, err := p.Pick(loadbalance.PickInfo{Ctx: loadbalance.WithGroup(context.Background(), "C")})
			assert.Equal(t, loadbalance.ErrNoInstanceAvailable, err)

			_, err = tc.builder.Build(nil).Pick(loadbalance.PickInfo{Ctx: context.Background()})
			assert.Equal(t, loadbalance.ErrNoInstanceAvailable, err)
		})
	}
}
