package client

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	assert "github.com/stretchr/testify/require"
)

func TestMetricHooks(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	reg := prometheus.NewRegistry()
	hooks, err := NewMetricHooks(reg)
	assert.NoError(t, err)

	ctx := WithClientTrace(context.Background(), hooks)
	s, err := NewRPCSession(ctx, sshConfig(TestPassword), server.Address())
	assert.NoError(t, err)
	defer s.Close()

	_, err = s.Execute(`<get-software-information/>`)
	assert.NoError(t, err)
	_, err = s.Execute(`<fail/>`)
	assert.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "netconf_client_rpc_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "netconf_client_connect_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = NewRPCSession(ctx, sshConfig("wrong"), server.Address())
	assert.Error(t, err)

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP netconf_client_errors_total Number of error conditions detected by the netconf client.
# TYPE netconf_client_errors_total counter
netconf_client_errors_total{context="Transport setup"} 1
`), "netconf_client_errors_total")
	assert.NoError(t, err)
}

func TestMetricHooksDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricHooks(reg)
	assert.NoError(t, err)

	_, err = NewMetricHooks(reg)
	assert.Error(t, err)
}
