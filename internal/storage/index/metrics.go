package index

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// EntryLimitExceeded counts the keys converted to undefined because their ID
// count reached the index entry limit.
var EntryLimitExceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "obaidx",
	Subsystem: "index",
	Name:      "entry_limit_exceeded_total",
}, []string{"index"})

// FilterEvaluations counts attribute filter evaluations by outcome.
var FilterEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "obaidx",
	Subsystem: "index",
	Name:      "filter_evaluations_total",
}, []string{"attribute", "type", "result"})

// IntegrityAnomalies counts index inconsistencies found while updating
// keys, such as removing an ID that is not stored.
var IntegrityAnomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "obaidx",
	Subsystem: "index",
	Name:      "integrity_anomalies_total",
}, []string{"index", "kind"})

// Register registers the index metrics with reg. Registering twice with the
// same registry is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{EntryLimitExceeded, FilterEvaluations, IntegrityAnomalies} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
