package observability

import (
	"testing"
	"time"
)

func TestRecordersRegisterOnce(t *testing.T) {
	RegisterMetrics()
	// A second registration must be a no-op, not a MustRegister panic.
	RegisterMetrics()

	RecordHTTPRequest("votectl-test", "GET", "/health", 200, 5*time.Millisecond)
	RecordFrameDecoded("vote")
	RecordFrameDropped("replay")
	RecordVoteAccepted()
	RecordPromptRetry()
	RecordControllerExpired()
	RecordRoundClosed("deadline", 3*time.Second)
}
