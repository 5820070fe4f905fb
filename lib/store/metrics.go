package store

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// Operation and error counters, exported through the process-wide metrics
// set. One counter per operation name keeps the cardinality fixed.

func countOp(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`fkv_store_operations_total{op=%q}`, op)).Inc()
}

// countErr bumps the error counter for op and returns err unchanged so
// failure paths stay single-expression.
func countErr(op string, err *Error) *Error {
	metrics.GetOrCreateCounter(fmt.Sprintf(`fkv_store_errors_total{op=%q,code=%q}`, op, err.Code.String())).Inc()
	return err
}
