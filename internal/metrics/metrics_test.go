package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}
	if m.SessionsConnected == nil {
		t.Error("SessionsConnected metric is nil")
	}
	if m.CDNChunksFetched == nil {
		t.Error("CDNChunksFetched metric is nil")
	}
	if m.StreamsActive == nil {
		t.Error("StreamsActive metric is nil")
	}
}

func TestRecordSessionConnectAndDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSessionConnect()
	m.RecordSessionConnect()

	if got := testutil.ToFloat64(m.SessionsConnected); got != 2 {
		t.Errorf("SessionsConnected = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal); got != 2 {
		t.Errorf("SessionsTotal = %v, want 2", got)
	}

	m.RecordSessionDisconnect("ap_closed")
	if got := testutil.ToFloat64(m.SessionsConnected); got != 1 {
		t.Errorf("SessionsConnected after disconnect = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionDisconnects.WithLabelValues("ap_closed")); got != 1 {
		t.Errorf("SessionDisconnects{ap_closed} = %v, want 1", got)
	}
}

func TestRecordMercuryRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordMercuryRequest("GET", 0.05)
	m.RecordMercuryRequest("GET", 0.1)
	m.RecordMercuryRequestError("GET")

	if got := testutil.ToFloat64(m.MercuryRequests.WithLabelValues("GET")); got != 2 {
		t.Errorf("MercuryRequests{GET} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MercuryRequestErrors.WithLabelValues("GET")); got != 1 {
		t.Errorf("MercuryRequestErrors{GET} = %v, want 1", got)
	}
}

func TestRecordAudioKeyRequestAndError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordAudioKeyRequest(0.2)
	m.RecordAudioKeyError("timeout")

	if got := testutil.ToFloat64(m.AudioKeyRequests); got != 1 {
		t.Errorf("AudioKeyRequests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AudioKeyErrors.WithLabelValues("timeout")); got != 1 {
		t.Errorf("AudioKeyErrors{timeout} = %v, want 1", got)
	}
}

func TestRecordCDNChunkFetchedAndError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordCDNChunkFetched(131072, 0.3)
	m.RecordCDNChunkFetched(131072, 0.4)
	m.RecordCDNChunkError("non_206_status")

	if got := testutil.ToFloat64(m.CDNChunksFetched); got != 2 {
		t.Errorf("CDNChunksFetched = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CDNBytesFetched); got != 262144 {
		t.Errorf("CDNBytesFetched = %v, want 262144", got)
	}
	if got := testutil.ToFloat64(m.CDNChunkErrors.WithLabelValues("non_206_status")); got != 1 {
		t.Errorf("CDNChunkErrors{non_206_status} = %v, want 1", got)
	}
}

func TestRecordStreamOpenAndClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordStreamOpen(1.5)
	if got := testutil.ToFloat64(m.StreamsActive); got != 1 {
		t.Errorf("StreamsActive = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StreamsOpened); got != 1 {
		t.Errorf("StreamsOpened = %v, want 1", got)
	}

	m.RecordStreamClose()
	if got := testutil.ToFloat64(m.StreamsActive); got != 0 {
		t.Errorf("StreamsActive after close = %v, want 0", got)
	}
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default() should return the same instance on repeated calls")
	}
}
