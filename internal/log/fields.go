package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldSenderID = "sender_id"

	// Chat delivery
	FieldRoomID    = "room_id"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldTopic     = "topic"
	FieldHandleID  = "handle_id"

	// Service
	FieldService = "service"

	// Log type (security-relevant events are tagged for audit search)
	FieldLogType    = "log_type"
	LogTypeSecurity = "security"
)
