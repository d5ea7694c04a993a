package navigation

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported         = errors.New("geolocation is not supported")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("timeout")
	ErrNoRoute             = errors.New("no route calculated")
	ErrUnresolvable        = errors.New("route endpoints could not be resolved")
	ErrPluginNotReady      = errors.New("map or tracking plugin not ready")

	// ErrSessionActive is returned by TrackingSession.Begin while a handle is live.
	ErrSessionActive = errors.New("tracking session already active")
	// ErrClosed is reported for intents received after ComponentTeardown.
	ErrClosed = errors.New("navigation controller closed")
)

// Geolocation error codes as reported by location providers.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// ErrorFromCode maps a provider error code to one of the sentinel errors.
// Unknown codes keep the provider message.
func ErrorFromCode(code int, message string) error {
	switch code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodePositionUnavailable:
		return ErrPositionUnavailable
	case CodeTimeout:
		return ErrTimeout
	}
	if message == "" {
		message = "unknown error"
	}
	return fmt.Errorf("geolocation error %d: %s", code, message)
}

// Kind returns a stable name for err, used on the wire.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrPositionUnavailable):
		return "position_unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrUnresolvable):
		return "unresolvable"
	case errors.Is(err, ErrPluginNotReady):
		return "plugin_not_ready"
	case errors.Is(err, ErrSessionActive):
		return "session_active"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	return "unknown"
}

// UserMessage renders err as the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupported):
		return "Geolocation is not supported by your browser."
	case errors.Is(err, ErrPermissionDenied):
		return "User denied Geolocation access."
	case errors.Is(err, ErrPositionUnavailable):
		return "Location unavailable. Check device settings/GPS."
	case errors.Is(err, ErrTimeout):
		return "Location request timed out. Weak signal?"
	case errors.Is(err, ErrNoRoute):
		return "Please calculate a route in the direction panel first."
	case errors.Is(err, ErrUnresolvable):
		return "Could not determine start/end coordinates. Please try searching via the map."
	case errors.Is(err, ErrPluginNotReady):
		return "Map or tracking plugin not ready."
	case errors.Is(err, ErrSessionActive):
		return "A navigation session is already running."
	case errors.Is(err, ErrClosed):
		return "Navigation has been closed."
	}
	return err.Error()
}
