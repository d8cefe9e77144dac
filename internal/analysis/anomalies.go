package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"netscope/internal/models"
)

// AnomalyType represents the type of anomaly detected.
type AnomalyType string

const (
	AnomalyBroadcastStorm AnomalyType = "BROADCAST_STORM"
	AnomalyUnsecure       AnomalyType = "UNSECURE_PROTOCOL"
	AnomalyDoS            AnomalyType = "POSSIBLE_DOS"
)

// AnomalyConfig holds the thresholds used by Anomalies.
type AnomalyConfig struct {
	BroadcastThreshold int // Broadcasts per second
	DoSThreshold       int // Packets per second per source
	MaxAlerts          int // Newest alerts kept
}

// DefaultAnomalyConfig returns the default thresholds.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		BroadcastThreshold: 50,
		DoSThreshold:       500,
		MaxAlerts:          20,
	}
}

// Alert represents a detected anomaly.
type Alert struct {
	Type      AnomalyType `json:"type"`
	Source    string      `json:"source"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// plaintext protocols by the label the classifier gives them.
var unsecureLabels = map[string]bool{
	"HTTP":     true,
	"FTP":      true,
	"FTP-DATA": true,
	"Telnet":   true,
	"TFTP":     true,
}

const ipv4Broadcast = "255.255.255.255"

type secondKey struct {
	source string
	second int64
}

// Anomalies scans a session for broadcast storms, plaintext protocols and
// single sources above the per-second packet threshold. Each plaintext
// source/protocol pair and each offending second is reported once. Alerts
// are ordered by time, newest last.
func Anomalies(ctx context.Context, s RecordScanner, session string, cfg AnomalyConfig) ([]Alert, error) {
	def := DefaultAnomalyConfig()
	if cfg.BroadcastThreshold <= 0 {
		cfg.BroadcastThreshold = def.BroadcastThreshold
	}
	if cfg.DoSThreshold <= 0 {
		cfg.DoSThreshold = def.DoSThreshold
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = def.MaxAlerts
	}

	var (
		alerts     []Alert
		broadcasts = make(map[int64]int)
		firstSeen  = make(map[int64]time.Time)
		perSource  = make(map[secondKey]int)
		sourceSeen = make(map[secondKey]time.Time)
		reported   = make(map[string]bool)
	)

	err := scanSummaries(ctx, s, session, func(rec models.PacketRecord) {
		sec := rec.Timestamp.Unix()

		if rec.Destination == ipv4Broadcast {
			if _, ok := firstSeen[sec]; !ok {
				firstSeen[sec] = rec.Timestamp
			}
			broadcasts[sec]++
		}

		label := rec.ProtocolLabel()
		if unsecureLabels[label] {
			key := rec.Source + "|" + label
			if !reported[key] {
				reported[key] = true
				alerts = append(alerts, Alert{
					Type:      AnomalyUnsecure,
					Source:    rec.Source,
					Message:   fmt.Sprintf("Plaintext %s traffic from %s to %s", label, rec.Source, rec.Destination),
					Timestamp: rec.Timestamp,
				})
			}
		}

		k := secondKey{source: rec.Source, second: sec}
		if _, ok := sourceSeen[k]; !ok {
			sourceSeen[k] = rec.Timestamp
		}
		perSource[k]++
	})
	if err != nil {
		return nil, err
	}

	for sec, n := range broadcasts {
		if n > cfg.BroadcastThreshold {
			alerts = append(alerts, Alert{
				Type:      AnomalyBroadcastStorm,
				Source:    "Network",
				Message:   fmt.Sprintf("Broadcast storm detected: %d broadcasts in 1 second", n),
				Timestamp: firstSeen[sec],
			})
		}
	}
	for k, n := range perSource {
		if n > cfg.DoSThreshold {
			alerts = append(alerts, Alert{
				Type:      AnomalyDoS,
				Source:    k.source,
				Message:   fmt.Sprintf("High packet rate from %s: %d pps", k.source, n),
				Timestamp: sourceSeen[k],
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if !alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].Timestamp.Before(alerts[j].Timestamp)
		}
		if alerts[i].Type != alerts[j].Type {
			return alerts[i].Type < alerts[j].Type
		}
		return alerts[i].Source < alerts[j].Source
	})
	if len(alerts) > cfg.MaxAlerts {
		alerts = alerts[len(alerts)-cfg.MaxAlerts:]
	}
	return alerts, nil
}
