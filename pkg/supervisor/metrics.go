package supervisor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce guards the default-registry registration: only the first
// Supervisor's collectors are registered and exported; collectors built for
// any later Supervisor in the same process (as in tests) count but are not
// exported.
var registerOnce sync.Once

type metrics struct {
	vmsRunning    prometheus.Gauge
	starts        prometheus.Counter
	startFailures prometheus.Counter
	stops         prometheus.Counter
	kills         prometheus.Counter
}

func newMetrics() metrics {
	m := metrics{
		vmsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvirt_vms_running",
			Help: "Number of VMs currently in the Running state on this node.",
		}),
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvirt_vm_starts_total",
			Help: "Total number of StartVm calls that moved a VM into the Starting state.",
		}),
		startFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvirt_vm_start_failures_total",
			Help: "Total number of VMs that ended in the Failed state, whether while starting or after running.",
		}),
		stops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvirt_vm_stops_total",
			Help: "Total number of VMs that reached Stopped from the Stopping state (StopVm, or KillVm of a Running VM).",
		}),
		kills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvirt_vm_kills_total",
			Help: "Total number of KillVm calls.",
		}),
	}

	registerOnce.Do(func() {
		prometheus.MustRegister(m.vmsRunning, m.starts, m.startFailures, m.stops, m.kills)
	})

	return m
}
