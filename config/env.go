package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

const (
	NetworkMainnet = "mainnet"
	NetworkHolesky = "holesky"
	NetworkSepolia = "sepolia"
)

// SupportedNetworks is ordered; the first entry is the default.
var SupportedNetworks = []string{NetworkMainnet, NetworkHolesky, NetworkSepolia}

var (
	ErrUnsupportedNetwork = fmt.Errorf("unsupported network")
)

type NetworkConfig struct {
	Network  string
	BaseURL  string
	Database string
	Table    string
}

// NetworkConfigFor returns the partition source settings for a network. BLOCKPROP_BASE_URL
// and BLOCKPROP_DATABASE override the published defaults.
func NetworkConfigFor(network string) (*NetworkConfig, error) {
	if !slices.Contains(SupportedNetworks, network) {
		return nil, fmt.Errorf("%w %q, must be one of: %s", ErrUnsupportedNetwork, network, strings.Join(SupportedNetworks, ", "))
	}

	config := &NetworkConfig{
		Network:  network,
		BaseURL:  XatuBaseURL,
		Database: DefaultDatabase,
		Table:    BlockEventsTable,
	}

	if baseURL := os.Getenv("BLOCKPROP_BASE_URL"); baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if database := os.Getenv("BLOCKPROP_DATABASE"); database != "" {
		config.Database = database
	}

	return config, nil
}

// CacheDir returns BLOCKPROP_CACHE_DIR, or DefaultCacheDir when unset.
func CacheDir() string {
	if dir := os.Getenv("BLOCKPROP_CACHE_DIR"); dir != "" {
		return dir
	}
	return DefaultCacheDir
}
