package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Relay entities
	FieldRoomID   = "room_id"
	FieldUserID   = "user_id"
	FieldStreamID = "stream_id"
	FieldConnID   = "conn_id"
	FieldApp      = "app"
	FieldStream   = "stream"

	// Transport
	FieldRemoteAddr = "remote_addr"
	FieldProtocol   = "protocol"

	// Service
	FieldService = "service"
)
