package lease

// DefaultMinimumDurationSeconds is the floor below which a spawn is
// rejected as insufficient payment.
const DefaultMinimumDurationSeconds = 60

// ComputeDuration implements the payment-to-duration arithmetic:
// duration_seconds = floor(payment_msats / rate_msats_per_sec). Integer
// division in Go already truncates toward zero, which for non-negative
// operands is floor.
func ComputeDuration(paymentMsats, rateMsatsPerSec int64) int64 {
	if rateMsatsPerSec <= 0 {
		return 0
	}
	return paymentMsats / rateMsatsPerSec
}
