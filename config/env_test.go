package config_test

import (
	"errors"
	"testing"

	"github.com/malbeclabs/blockprop/config"
	"github.com/stretchr/testify/require"
)

func TestConfig_NetworkConfigFor(t *testing.T) {
	tests := []struct {
		network string
		want    *config.NetworkConfig
		wantErr error
	}{
		{
			network: config.NetworkMainnet,
			want: &config.NetworkConfig{
				Network:  config.NetworkMainnet,
				BaseURL:  config.XatuBaseURL,
				Database: config.DefaultDatabase,
				Table:    config.BlockEventsTable,
			},
		},
		{
			network: config.NetworkHolesky,
			want: &config.NetworkConfig{
				Network:  config.NetworkHolesky,
				BaseURL:  config.XatuBaseURL,
				Database: config.DefaultDatabase,
				Table:    config.BlockEventsTable,
			},
		},
		{
			network: config.NetworkSepolia,
			want: &config.NetworkConfig{
				Network:  config.NetworkSepolia,
				BaseURL:  config.XatuBaseURL,
				Database: config.DefaultDatabase,
				Table:    config.BlockEventsTable,
			},
		},
		{
			network: "goerli",
			wantErr: config.ErrUnsupportedNetwork,
		},
	}

	for _, test := range tests {
		t.Run(test.network, func(t *testing.T) {
			got, err := config.NetworkConfigFor(test.network)
			if test.wantErr != nil {
				require.True(t, errors.Is(err, test.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, got)
		})
	}
}

func TestConfig_NetworkConfigFor_OverrideFromEnvVars(t *testing.T) {
	t.Setenv("BLOCKPROP_BASE_URL", "https://mirror.example.com/xatu/")
	t.Setenv("BLOCKPROP_DATABASE", "other")
	got, err := config.NetworkConfigFor(config.NetworkMainnet)
	require.NoError(t, err)
	require.Equal(t, "https://mirror.example.com/xatu", got.BaseURL)
	require.Equal(t, "other", got.Database)
}

func TestConfig_CacheDir(t *testing.T) {
	t.Setenv("BLOCKPROP_CACHE_DIR", "")
	require.Equal(t, config.DefaultCacheDir, config.CacheDir())

	t.Setenv("BLOCKPROP_CACHE_DIR", "/var/cache/blockprop")
	require.Equal(t, "/var/cache/blockprop", config.CacheDir())
}
