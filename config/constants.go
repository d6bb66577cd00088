package config

import "time"

const (
	// Xatu public data constants.
	XatuBaseURL     = "https://data.ethpandaops.io/xatu"
	XatuTablesURL   = "https://raw.githubusercontent.com/ethpandaops/xatu-data/master/llms.txt"
	DefaultDatabase = "default"

	// Beacon API block events, one row per (client, block) sighting.
	BlockEventsTable = "beacon_api_eth_v1_events_block"

	// Local partition cache directory.
	DefaultCacheDir = "data"

	// Processed reports are reused for this long unless a refresh is forced.
	DefaultRefreshTime = 3 * time.Hour

	// Partitions are published with a lag; the block arrival report looks this far back.
	DefaultBlockArrivalLag = 3 * 24 * time.Hour
)
