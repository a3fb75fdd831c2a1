package domain

import "time"

// Service is a monitored service that SLAs and alert rules are scoped to.
type Service struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
