package stats

import (
	"cmp"
	"slices"
	"strconv"
	"time"
)

// BlockRecord summarizes every sighting of one block.
type BlockRecord struct {
	BlockID      string    `json:"block_id"`
	Slot         int64     `json:"slot"`
	Epoch        int64     `json:"epoch"`
	Hour         int       `json:"hour"`
	FirstSeen    time.Time `json:"first_seen"`
	MinMs        float64   `json:"min_propagation_ms"`
	MeanMs       float64   `json:"mean_propagation_ms"`
	MedianMs     float64   `json:"median_propagation_ms"`
	P90Ms        float64   `json:"p90_propagation_ms"`
	Observations int       `json:"num_observations"`
}

func BlockID(slot, epoch int64) string {
	return strconv.FormatInt(slot, 10) + "_" + strconv.FormatInt(epoch, 10)
}

// Blocks groups observations by block ID. Slot, epoch and hour come from the first
// observation of each block; records are ordered by slot, then epoch.
func Blocks(obs *Observations) []BlockRecord {
	type group struct {
		first     int
		firstSeen time.Time
		values    []float64
	}
	groups := make(map[string]*group)
	var order []string
	for i := range obs.Len() {
		id := obs.BlockID[i]
		g, ok := groups[id]
		if !ok {
			g = &group{first: i, firstSeen: obs.EventTime[i]}
			groups[id] = g
			order = append(order, id)
		}
		if obs.EventTime[i].Before(g.firstSeen) {
			g.firstSeen = obs.EventTime[i]
		}
		g.values = append(g.values, obs.CappedMs[i])
	}

	records := make([]BlockRecord, 0, len(order))
	for _, id := range order {
		g := groups[id]
		sorted := Sorted(g.values)
		records = append(records, BlockRecord{
			BlockID:      id,
			Slot:         obs.Slot[g.first],
			Epoch:        obs.Epoch[g.first],
			Hour:         obs.Hour[g.first],
			FirstSeen:    g.firstSeen,
			MinMs:        sorted[0],
			MeanMs:       Mean(sorted),
			MedianMs:     Median(sorted),
			P90Ms:        Quantile(sorted, 0.9),
			Observations: len(sorted),
		})
	}
	slices.SortStableFunc(records, func(a, b BlockRecord) int {
		if c := cmp.Compare(a.Slot, b.Slot); c != 0 {
			return c
		}
		return cmp.Compare(a.Epoch, b.Epoch)
	})
	return records
}
