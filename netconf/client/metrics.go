package client

import (
	"time"

	"github.com/damianoneill/junosmgr/netconf/common"

	"github.com/prometheus/client_golang/prometheus"
)

// NewMetricHooks delivers trace hooks that record connection and rpc metrics in the supplied
// registry. The hooks can be combined with logging hooks by assigning the remaining fields.
func NewMetricHooks(reg prometheus.Registerer) (*ClientTrace, error) {
	connectDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netconf",
		Subsystem: "client",
		Name:      "connect_duration_seconds",
		Help:      "Time taken to establish a netconf transport connection.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	rpcDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "netconf",
		Subsystem: "client",
		Name:      "rpc_duration_seconds",
		Help:      "Time taken to execute a netconf rpc.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"rpc", "result"})

	errorCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netconf",
		Subsystem: "client",
		Name:      "errors_total",
		Help:      "Number of error conditions detected by the netconf client.",
	}, []string{"context"})

	for _, c := range []prometheus.Collector{connectDuration, rpcDuration, errorCount} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &ClientTrace{
		ConnectDone: func(target string, err error, d time.Duration) {
			connectDuration.WithLabelValues(result(err)).Observe(d.Seconds())
		},
		Error: func(context, target string, err error) {
			errorCount.WithLabelValues(context).Inc()
		},
		ExecuteDone: func(req common.Request, res *common.RPCReply, err error, d time.Duration) {
			rpcDuration.WithLabelValues(common.RequestName(req), result(err)).Observe(d.Seconds())
		},
	}, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
