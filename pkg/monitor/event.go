package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// NewEvent stamps a fresh event id and ISO-8601 UTC timestamp onto a
// caller-populated event, matching the wire schema of spec.md §6.
func NewEvent(eventType models.EventType, fill func(*models.Event)) models.Event {
	e := models.Event{
		EventID:   uuid.NewString(),
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
	}
	if fill != nil {
		fill(&e)
	}
	return e
}
