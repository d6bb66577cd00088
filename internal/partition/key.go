package partition

import (
	"fmt"
	"time"

	"github.com/malbeclabs/blockprop/config"
)

// Key identifies one daily partition.
type Key struct {
	Network string
	Table   string
	Date    time.Time
}

func NewKey(network, table string, date time.Time) Key {
	return Key{Network: network, Table: table, Date: config.Day(date)}
}

// CacheFile is the file name of the key's cache entry.
func (k Key) CacheFile() string {
	return fmt.Sprintf("%s_%s_%s.parquet", k.Network, k.Table, k.Date.Format(time.DateOnly))
}

// ObjectPath is the key's path relative to the source base, without zero padding.
func (k Key) ObjectPath(database string) string {
	y, m, d := k.Date.Date()
	return fmt.Sprintf("%s/databases/%s/%s/%d/%d/%d.parquet", k.Network, database, k.Table, y, int(m), d)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Network, k.Table, k.Date.Format(time.DateOnly))
}
