package audit

// EventType represents the type of audit event.
type EventType string

const (
	EventSystemStartup       EventType = "SYSTEM_STARTUP"
	EventControllerConnected EventType = "CONTROLLER_CONNECTED"
	EventControllerFailed    EventType = "CONTROLLER_FAILED"
	EventEntityRegistered    EventType = "ENTITY_REGISTERED"
	EventEntityRemoved       EventType = "ENTITY_REMOVED"
	EventDeviceDiscovered    EventType = "DEVICE_DISCOVERED"
	EventCommandDispatched   EventType = "COMMAND_DISPATCHED"
	EventCommandFailed       EventType = "COMMAND_FAILED"
	EventSourceNotFound      EventType = "SOURCE_NOT_FOUND"
	EventSystemError         EventType = "SYSTEM_ERROR"
)

// validEventTypes defines all valid audit event types.
var validEventTypes = map[string]bool{
	string(EventSystemStartup):       true,
	string(EventControllerConnected): true,
	string(EventControllerFailed):    true,
	string(EventEntityRegistered):    true,
	string(EventEntityRemoved):       true,
	string(EventDeviceDiscovered):    true,
	string(EventCommandDispatched):   true,
	string(EventCommandFailed):       true,
	string(EventSourceNotFound):      true,
	string(EventSystemError):         true,
}

// IsValidEventType reports whether t is a known event type.
func IsValidEventType(t string) bool {
	return validEventTypes[t]
}

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// validEventLevels defines the levels accepted from clients.
var validEventLevels = map[string]EventLevel{
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}
