package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTransferMetrics_Observe(t *testing.T) {
	m := NewTransferMetrics(prometheus.NewRegistry())

	m.Observe("committed", 5*time.Millisecond, 30)
	m.Observe("committed", 2*time.Millisecond, 10)
	m.Observe("insufficient_stock", time.Millisecond, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.transfers.WithLabelValues("committed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transfers.WithLabelValues("insufficient_stock")))
	assert.Equal(t, float64(40), testutil.ToFloat64(m.units))
}

func TestTransferMetrics_NilIsNoop(t *testing.T) {
	var m *TransferMetrics
	assert.NotPanics(t, func() { m.Observe("committed", time.Millisecond, 1) })
}
