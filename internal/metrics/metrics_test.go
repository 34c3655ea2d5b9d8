package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultOnce(t *testing.T) {
	RegisterDefault()
	assert.NotPanics(t, RegisterDefault)

	AlertsCreated.WithLabelValues("critical").Inc()
	families, err := Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["detention_alerts_created_total"])
	assert.True(t, names["go_goroutines"])
}
