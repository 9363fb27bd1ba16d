package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	appends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_checkpoint_appends_total",
		Help: "Number of checkpoints appended.",
	})

	appendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_checkpoint_append_errors_total",
		Help: "Number of failed checkpoint appends.",
	})

	reads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatd_checkpoint_reads_total",
		Help: "Number of checkpoint state and history reads.",
	})
)

func init() {
	prometheus.MustRegister(appends)
	prometheus.MustRegister(appendErrors)
	prometheus.MustRegister(reads)
}
