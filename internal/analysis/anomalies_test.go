package analysis

import (
	"context"
	"testing"
	"time"

	"netscope/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnomaliesPlaintextReportedOnce(t *testing.T) {
	s := &sliceScanner{records: []models.PacketRecord{
		rec("10.0.0.5", "93.184.216.34", "HTTP", base),
		rec("10.0.0.5", "93.184.216.34", "HTTP", base.Add(time.Second)),
		rec("10.0.0.6", "10.0.0.1", "Telnet", base.Add(2*time.Second)),
		rec("10.0.0.5", "1.1.1.1", "HTTPS", base.Add(3*time.Second)),
	}}
	alerts, err := Anomalies(context.Background(), s, "packet_data_x", AnomalyConfig{})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, AnomalyUnsecure, alerts[0].Type)
	assert.Equal(t, "10.0.0.5", alerts[0].Source)
	assert.Contains(t, alerts[0].Message, "HTTP")
	assert.Equal(t, "10.0.0.6", alerts[1].Source)
}

func TestAnomaliesRateThresholds(t *testing.T) {
	var records []models.PacketRecord
	for i := 0; i < 6; i++ {
		records = append(records, rec("10.0.0.9", "255.255.255.255", "DHCP-Server", base.Add(time.Duration(i)*time.Millisecond)))
	}
	for i := 0; i < 3; i++ {
		records = append(records, rec("10.0.0.7", "10.0.0.1", "DNS", base.Add(5*time.Second)))
	}
	s := &sliceScanner{records: records}

	alerts, err := Anomalies(context.Background(), s, "packet_data_x", AnomalyConfig{BroadcastThreshold: 5, DoSThreshold: 5})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, AnomalyBroadcastStorm, alerts[0].Type)
	assert.Equal(t, AnomalyDoS, alerts[1].Type)
	assert.Equal(t, "10.0.0.9", alerts[1].Source)
	assert.Contains(t, alerts[1].Message, "6 pps")
}

func TestAnomaliesKeepsNewest(t *testing.T) {
	var records []models.PacketRecord
	for i := 0; i < 5; i++ {
		src := string(rune('a' + i))
		records = append(records, rec(src, "x", "FTP", base.Add(time.Duration(i)*time.Second)))
	}
	alerts, err := Anomalies(context.Background(), &sliceScanner{records: records}, "packet_data_x", AnomalyConfig{MaxAlerts: 2})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "d", alerts[0].Source)
	assert.Equal(t, "e", alerts[1].Source)
}
