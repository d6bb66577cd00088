package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// Field names an optional text column of the block events table.
type Field string

const (
	FieldClientName              Field = "meta_client_name"
	FieldClientImplementation    Field = "meta_client_implementation"
	FieldClientVersion           Field = "meta_client_version"
	FieldClientGeoCity           Field = "meta_client_geo_city"
	FieldClientGeoCountry        Field = "meta_client_geo_country"
	FieldClientGeoCountryCode    Field = "meta_client_geo_country_code"
	FieldClientGeoASOrganization Field = "meta_client_geo_autonomous_system_organization"
	FieldNetworkName             Field = "meta_network_name"
	FieldConsensusImplementation Field = "meta_consensus_implementation"
	FieldConsensusVersion        Field = "meta_consensus_version"
)

// Required column names.
const (
	ColumnSlot          = "slot"
	ColumnEpoch         = "epoch"
	ColumnEventTime     = "event_date_time"
	ColumnPropagationMs = "propagation_slot_start_diff"
)

// KnownFields lists every optional label column in a stable order.
var KnownFields = []Field{
	FieldClientName,
	FieldClientImplementation,
	FieldClientVersion,
	FieldClientGeoCity,
	FieldClientGeoCountry,
	FieldClientGeoCountryCode,
	FieldClientGeoASOrganization,
	FieldNetworkName,
	FieldConsensusImplementation,
	FieldConsensusVersion,
}

var (
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrUnsupportedDataset = errors.New("unsupported dataset type")
)

type Encoding uint8

const (
	EncodingText Encoding = iota
	EncodingBinary
)

func (e Encoding) String() string {
	if e == EncodingBinary {
		return "binary"
	}
	return "text"
}

// ColumnSchema describes one present label column.
type ColumnSchema struct {
	Field    Field
	Encoding Encoding
}

// Schema lists the present label columns in KnownFields order.
type Schema []ColumnSchema

func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = fmt.Sprintf("%s:%s", c.Field, c.Encoding)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
