package routequestion

import "session-insights/internal/models"

type Input struct {
	Question string `json:"question"`
}

type Output struct {
	RoutedRequest models.RoutedRequest `json:"routedRequest"`
}
