package resolvequestion

import (
	"session-insights/internal/models"
	"session-insights/internal/orchestrator"
)

// Input carries either a raw question or a request already routed by
// route-question. userId scopes every data read.
type Input struct {
	UserID        string                `json:"userId"`
	Question      string                `json:"question"`
	RoutedRequest *models.RoutedRequest `json:"routedRequest,omitempty"`
}

type Output struct {
	Outcome orchestrator.Outcome `json:"outcome"`
}
