package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonVADProcess       ReasonCode = "vad_process"
	ReasonInvalidParameter ReasonCode = "invalid_parameter"
	ReasonEncode           ReasonCode = "encode"
	ReasonCaptureTimeout   ReasonCode = "capture_timeout"
	ReasonCaptureSource    ReasonCode = "capture_source"

	ReasonInteraction  ReasonCode = "interaction"
	ReasonDialogFailed ReasonCode = "dialog_failed"

	ReasonTransportConnect     ReasonCode = "transport_connect"
	ReasonTransportSend        ReasonCode = "transport_send"
	ReasonTransportStatus      ReasonCode = "transport_status"
	ReasonTransportRateLimit   ReasonCode = "transport_rate_limit"
	ReasonTransportCircuitOpen ReasonCode = "transport_circuit_open"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"

	ReasonConfig ReasonCode = "config"
)
