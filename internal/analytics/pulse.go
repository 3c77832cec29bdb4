package analytics

import (
	"encoding/json"

	"github.com/radiusdt/adpulse/internal/aggregate"
	"github.com/radiusdt/adpulse/internal/models"
)

const (
	// pulseIntervals is the number of buckets in the pulse window; the feed
	// has one more row so both ends of the window are included.
	pulseIntervals = 60
	pulseWindowMs  = pulseIntervals * aggregate.BucketSizeMs
	pulseCampaigns = 5
)

// PulseSeries names one line of the pulse chart. Key is the time-series
// key and doubles as the field name in each PulseRow.
type PulseSeries struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// PulseRow is the value of every series at one bucket. It marshals flat,
// as {"time": ..., "<key>": value, ...}.
type PulseRow struct {
	Time   int64
	Values map[string]float64
}

func (r PulseRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Values)+1)
	for k, v := range r.Values {
		out[k] = v
	}
	out["time"] = r.Time
	return json.Marshal(out)
}

type PulseFeed struct {
	Series []PulseSeries `json:"series"`
	Data   []PulseRow    `json:"data"`
}

// buildPulse lays the buckets of each series onto the window starting at
// startBucket. Gaps between two known buckets are linearly interpolated,
// the last known value is held to the end of the window and buckets before
// the first known one stay 0. Rows before resetTime are zeroed.
func buildPulse(startBucket, resetTime int64, series []PulseSeries, points map[string][]*models.TimeSeriesMetric) []PulseRow {
	rows := make([]PulseRow, pulseIntervals+1)
	for i := range rows {
		rows[i] = PulseRow{
			Time:   startBucket + int64(i)*aggregate.BucketSizeMs,
			Values: make(map[string]float64, len(series)),
		}
		for _, s := range series {
			rows[i].Values[s.Key] = 0
		}
	}

	for _, s := range series {
		known := make(map[int64]float64, len(points[s.Key]))
		for _, p := range points[s.Key] {
			known[p.Bucket] = float64(p.Value)
		}

		last := -1
		for i := range rows {
			v, ok := known[rows[i].Time]
			if !ok {
				continue
			}
			rows[i].Values[s.Key] = v
			if last >= 0 && i-last > 1 {
				from := rows[last].Values[s.Key]
				steps := float64(i - last)
				for j := 1; j < i-last; j++ {
					rows[last+j].Values[s.Key] = from + (v-from)*(float64(j)/steps)
				}
			}
			last = i
		}
		if last >= 0 {
			for i := last + 1; i < len(rows); i++ {
				rows[i].Values[s.Key] = rows[last].Values[s.Key]
			}
		}
	}

	for i := range rows {
		if rows[i].Time >= resetTime {
			continue
		}
		for k := range rows[i].Values {
			rows[i].Values[k] = 0
		}
	}
	return rows
}
