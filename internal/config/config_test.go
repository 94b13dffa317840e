package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		data    string
		want    func() *Config
		wantErr string
	}{
		{
			name: "defaults",
			data: "",
			want: Default,
		},
		{
			name: "overrides",
			data: `
[node]
group = "blue"

[etcd]
endpoints = ["10.0.0.1:2379", "10.0.0.2:2379"]
dial_timeout = "5s"

[delivery]
send_timeout = "1500ms"
serializer = "proto"
compressor = "snappy"
tracing = true

[services]
balancer = "least_active"
`,
			want: func() *Config {
				cfg := Default()
				cfg.Node.Group = "blue"
				cfg.Etcd.Endpoints = []string{"10.0.0.1:2379", "10.0.0.2:2379"}
				cfg.Etcd.DialTimeout = time.Second * 5
				cfg.Delivery.SendTimeout = time.Millisecond * 1500
				cfg.Delivery.Serializer = "proto"
				cfg.Delivery.Compressor = "snappy"
				cfg.Delivery.Tracing = true
				cfg.Services.Balancer = BalancerLeastActive
				return cfg
			},
		},
		{
			name:    "unknown key",
			data:    "[gateway]\nport = 80\n",
			wantErr: "config: unknown keys gateway.port",
		},
		{
			name:    "bad compressor",
			data:    "[delivery]\ncompressor = \"brotli\"\n",
			wantErr: `delivery.compressor must be one of none|gzip|lz4|snappy|zlib, got "brotli"`,
		},
		{
			name:    "bad ttl",
			data:    "[etcd]\nttl = 0\n",
			wantErr: "etcd.ttl must be positive, got 0",
		},
		{
			name:    "no services",
			data:    "[services]\ndata_handle = \"\"\n",
			wantErr: "services.device_manager and services.data_handle are required",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse(tc.data)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want(), cfg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkgateway.toml")
	require.NoError(t, os.WriteFile(path, []byte("[gateway]\naddr = \":8080\"\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Gateway.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
