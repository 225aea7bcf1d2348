package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(SymbolsSkipped.WithLabelValues("test"))
	SymbolsSkipped.WithLabelValues("test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SymbolsSkipped.WithLabelValues("test")))

	BarsFetched.WithLabelValues("mock").Add(10)
	assert.GreaterOrEqual(t, testutil.ToFloat64(BarsFetched.WithLabelValues("mock")), 10.0)
}
