package loadbalance

import (
	"context"
	"testing"

	"github.com/JobsHwang/LinkIOT/registry"
	"github.com/stretchr/testify/assert"
)

func TestGroupFilter(t *testing.T) {
	testCases := []struct {
		name string
		ctx  context.Context
		ins  registry.ServiceInstance
		want bool
	}{
		{
			name: "no group",
			ctx:  context.Background(),
			ins:  registry.ServiceInstance{Group: "A"},
			want: true,
		},
		{
			name: "nil ctx",
			ins:  registry.ServiceInstance{Group: "A"},
			want: true,
		},
		{
			name: "same group",
			ctx:  WithGroup(context.Background(), "A"),
			ins:  registry.ServiceInstance{Group: "A"},
			want: true,
		},
		{
			name: "other group",
			ctx:  WithGroup(context.Background(), "A"),
			ins:  registry.ServiceInstance{Group: "B"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GroupFilter(PickInfo{Ctx: tc.ctx}, tc.ins))
		})
	}
}
