package errors

// 中继错误码
const (
	CodeAlertNotFound    = 4004
	CodeMalformedMessage = 4000
	CodeDeliveryFailure  = 5020
	CodeTransportClosed  = 4990
	CodeSendBufferFull   = 5030
	CodeConnectionLimit  = 5031
)

var (
	// ErrAlertNotFound respond/cancel referenced an unknown alert id
	ErrAlertNotFound = WithCode(CodeAlertNotFound, "alert not found")
	// ErrMalformedMessage missing/invalid fields or an unknown action
	ErrMalformedMessage = WithCode(CodeMalformedMessage, "malformed message")
	// ErrDeliveryFailure target absent from the registry or its send failed
	ErrDeliveryFailure = WithCode(CodeDeliveryFailure, "delivery failed")
	// ErrTransportClosed the connection is gone
	ErrTransportClosed = WithCode(CodeTransportClosed, "connection closed")
	// ErrSendBufferFull the connection's outbound buffer did not drain in time
	ErrSendBufferFull = WithCode(CodeSendBufferFull, "send buffer full")
	// ErrConnectionLimit the hub refused a connection over its cap
	ErrConnectionLimit = WithCode(CodeConnectionLimit, "connection limit exceeded")
)
