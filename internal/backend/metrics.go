package backend

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KilimcininKorOglu/obaidx/internal/storage"
	"github.com/KilimcininKorOglu/obaidx/internal/storage/index"
)

// Operations counts finished container operations by result.
var Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "obaidx",
	Subsystem: "backend",
	Name:      "operations_total",
}, []string{"op", "result"})

// DeadlockRetries counts transaction attempts retried after a deadlock.
var DeadlockRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "obaidx",
	Subsystem: "backend",
	Name:      "deadlock_retries_total",
}, []string{"op"})

// Register registers the backend and index metrics with reg, plus a pebble
// collector for store when it is not nil.
func Register(reg prometheus.Registerer, store *storage.Store) error {
	collectors := []prometheus.Collector{Operations, DeadlockRetries}
	if store != nil {
		collectors = append(collectors, storage.NewCollector(store))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return index.Register(reg)
}
