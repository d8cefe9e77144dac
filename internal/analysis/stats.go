// Package analysis computes aggregates over one session table. Every
// function scans the table when called and keeps nothing between calls, so
// results stay consistent with a table the capture loop is still appending to.
package analysis

import (
	"context"
	"fmt"
	"sort"

	"netscope/internal/models"
	"netscope/internal/store"

	"github.com/montanaflynn/stats"
)

// BucketLayout keys packets-per-second buckets by time of day only. Records
// from different days at the same second share a bucket.
const BucketLayout = "15:04:05"

// RecordScanner is the read side of the record store.
type RecordScanner interface {
	Scan(ctx context.Context, name string, f store.Filter, fn func(models.PacketRecord) error) error
}

// ProtocolStat holds the count for a single label.
type ProtocolStat struct {
	Protocol string `json:"protocol"`
	Count    int    `json:"count"`
}

// Talker is an address with its traffic counts.
type Talker struct {
	Address string `json:"address"`
	models.IPStats
}

// Total is the number of records the address appeared in on either side.
func (t Talker) Total() int {
	return t.SourceCount + t.DestinationCount
}

// RateSummary describes the per-second packet counts of a session.
type RateSummary struct {
	Seconds int     `json:"seconds"`
	Packets int     `json:"packets"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	P95     float64 `json:"p95"`
	Max     float64 `json:"max"`
}

func scanSummaries(ctx context.Context, s RecordScanner, session string, fn func(models.PacketRecord)) error {
	return s.Scan(ctx, session, store.Filter{OmitPayload: true}, func(rec models.PacketRecord) error {
		fn(rec)
		return nil
	})
}

// IPStats counts, for every address, the records it was the source of and
// the records it was the destination of.
func IPStats(ctx context.Context, s RecordScanner, session string) (map[string]models.IPStats, error) {
	result := make(map[string]models.IPStats)
	err := scanSummaries(ctx, s, session, func(rec models.PacketRecord) {
		src := result[rec.Source]
		src.SourceCount++
		result[rec.Source] = src

		dst := result[rec.Destination]
		dst.DestinationCount++
		result[rec.Destination] = dst
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PacketsPerSecond counts records per HH:MM:SS, in the offset each record
// was stored with. Buckets are sorted by key.
func PacketsPerSecond(ctx context.Context, s RecordScanner, session string) ([]models.TimeBucket, error) {
	counts := make(map[string]int)
	err := scanSummaries(ctx, s, session, func(rec models.PacketRecord) {
		counts[rec.Timestamp.Format(BucketLayout)]++
	})
	if err != nil {
		return nil, err
	}

	buckets := make([]models.TimeBucket, 0, len(counts))
	for key, n := range counts {
		buckets = append(buckets, models.TimeBucket{Time: key, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Time < buckets[j].Time
	})
	return buckets, nil
}

// ProtocolHistogram counts records per protocol label. Records stored without
// a label are counted as models.UnknownProtocol.
func ProtocolHistogram(ctx context.Context, s RecordScanner, session string) (map[string]int, error) {
	counts := make(map[string]int)
	err := scanSummaries(ctx, s, session, func(rec models.PacketRecord) {
		counts[rec.ProtocolLabel()]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// PacketTypeHistogram counts records per network layer.
func PacketTypeHistogram(ctx context.Context, s RecordScanner, session string) (map[models.PacketType]int, error) {
	counts := make(map[models.PacketType]int)
	err := scanSummaries(ctx, s, session, func(rec models.PacketRecord) {
		counts[rec.PacketType]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// SortedProtocols returns the histogram sorted descending by count.
func SortedProtocols(hist map[string]int) []ProtocolStat {
	out := make([]ProtocolStat, 0, len(hist))
	for proto, count := range hist {
		out = append(out, ProtocolStat{Protocol: proto, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out
}

// TopTalkers returns the n busiest addresses. n <= 0 returns all of them.
func TopTalkers(ipStats map[string]models.IPStats, n int) []Talker {
	talkers := make([]Talker, 0, len(ipStats))
	for addr, st := range ipStats {
		talkers = append(talkers, Talker{Address: addr, IPStats: st})
	}
	sort.Slice(talkers, func(i, j int) bool {
		if talkers[i].Total() != talkers[j].Total() {
			return talkers[i].Total() > talkers[j].Total()
		}
		return talkers[i].Address < talkers[j].Address
	})
	if n > 0 && len(talkers) > n {
		return talkers[:n]
	}
	return talkers
}

// Rate summarises per-second buckets. Seconds with no traffic have no bucket
// and do not pull the figures down.
func Rate(buckets []models.TimeBucket) (RateSummary, error) {
	if len(buckets) == 0 {
		return RateSummary{}, nil
	}
	data := make(stats.Float64Data, 0, len(buckets))
	summary := RateSummary{Seconds: len(buckets)}
	for _, b := range buckets {
		data = append(data, float64(b.Count))
		summary.Packets += b.Count
	}

	var err error
	if summary.Mean, err = data.Mean(); err != nil {
		return RateSummary{}, fmt.Errorf("rate mean: %w", err)
	}
	if summary.Median, err = data.Median(); err != nil {
		return RateSummary{}, fmt.Errorf("rate median: %w", err)
	}
	if summary.P95, err = data.Percentile(95); err != nil {
		return RateSummary{}, fmt.Errorf("rate p95: %w", err)
	}
	if summary.Max, err = data.Max(); err != nil {
		return RateSummary{}, fmt.Errorf("rate max: %w", err)
	}
	return summary, nil
}
