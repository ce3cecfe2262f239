package protocol

// 4000: replaced by a newer connection
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseReplaced        = 4000
)

const (
	ReasonReplaced         = "Replaced by new connection"
	ReasonShutdown         = "server shutting down"
	ReasonMissingRoom      = "missing room identifier"
	ReasonUnauthorized     = "authentication required"
	ReasonDocumentNotFound = "document not found"
	ReasonInternal         = "internal error"
)
