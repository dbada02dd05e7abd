package metrics

import "time"

// Recorder receives counters and latencies from the gate and settler.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names.
const (
	EventGatePaid     = "gate_paid"
	EventGateRejected = "gate_rejected"
	EventGateError    = "gate_error"
	OperationSettle   = "settle"
)
