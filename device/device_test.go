package device

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo_ToJSON(t *testing.T) {
	info := &Info{
		ID:      "dev-1",
		Name:    "greenhouse",
		State:   StatusOn,
		Token:   "token-1",
		Config:  map[string]any{"interval": 5},
		Sensors: []Sensor{{ID: 7, DataType: "float"}},
	}
	assert.Equal(t, map[string]any{
		"id":      "dev-1",
		"name":    "greenhouse",
		"state":   1,
		"token":   "token-1",
		"config":  map[string]any{"interval": 5},
		"sensors": []any{map[string]any{"id": 7, "datatype": "float"}},
	}, info.ToJSON())
}

func TestFromJSON(t *testing.T) {
	testCases := []struct {
		name     string
		input    map[string]any
		wantInfo *Info
		wantErr  bool
	}{
		{
			name: "nil",
		},
		{
			name: "local values",
			input: map[string]any{
				"id":      "dev-1",
				"name":    "greenhouse",
				"state":   1,
				"sensors": []any{map[string]any{"id": 7, "datatype": "float"}},
			},
			wantInfo: &Info{
				ID:      "dev-1",
				Name:    "greenhouse",
				State:   StatusOn,
				Sensors: []Sensor{{ID: 7, DataType: "float"}},
			},
		},
		{
			name: "decoded json",
			input: func() map[string]any {
				return map[string]any{
					"id":      "dev-2",
					"state":   json.Number("0"),
					"token":   "t",
					"config":  map[string]any{"unit": "C"},
					"sensors": []any{map[string]any{"id": json.Number("3"), "datatype": "int"}},
				}
			}(),
			wantInfo: &Info{
				ID:      "dev-2",
				State:   StatusOff,
				Token:   "t",
				Config:  map[string]any{"unit": "C"},
				Sensors: []Sensor{{ID: 3, DataType: "int"}},
			},
		},
		{
			name:    "bad id",
			input:   map[string]any{"id": 1},
			wantErr: true,
		},
		{
			name:    "bad sensor",
			input:   map[string]any{"id": "x", "sensors": []any{"7"}},
			wantErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := FromJSON(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantInfo, res)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	info := &Info{ID: "dev-3", Name: "n", State: StatusOn, Sensors: []Sensor{{ID: 1, DataType: "bool"}}}
	res, err := FromJSON(info.ToJSON())
	require.NoError(t, err)
	assert.Equal(t, info, res)
}
