package ctxstore

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Operation names used as metric labels
const (
	OpOpen    = "open"
	OpClose   = "close"
	OpGet     = "get"
	OpSet     = "set"
	OpUnset   = "unset"
	OpKeys    = "keys"
	OpDelete  = "delete"
	OpClean   = "clean"
	OpUnknown = "unknown"
)

// ObserveOp records the duration and outcome of one store operation in the default
// VictoriaMetrics set. Use it as defer ctxstore.ObserveOp(op, time.Now(), &err).
func ObserveOp(op string, start time.Time, err *error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dctx_store_ops_total{op=%q}`, op)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dctx_store_op_duration_seconds{op=%q}`, op)).UpdateDuration(start)
	if err != nil && *err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`dctx_store_errors_total{op=%q}`, op)).Inc()
	}
}
