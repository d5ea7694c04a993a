package subscriber

import "mappls-navigation/internal/navigation"

// RouteMessage is a route calculation published for one navigation session.
type RouteMessage struct {
	SessionID string                  `json:"session_id" validate:"required"`
	Action    Action                  `json:"action" validate:"omitempty,oneof=set clear"`
	Result    *navigation.RouteResult `json:"result" validate:"required_unless=Action clear"`
}

type Action string

const (
	Set   Action = "set"
	Clear Action = "clear"
)

func (a Action) IsClear() bool {
	return a == Clear
}
