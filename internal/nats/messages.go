package nats

import (
	"time"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

// AlertCreatedEvent is published for every persisted alert.
type AlertCreatedEvent struct {
	// Origin identifies the publishing instance so it can ignore its own
	// events when relaying.
	Origin      string       `json:"origin"`
	Source      string       `json:"source"`
	Alert       models.Alert `json:"alert"`
	PublishedAt time.Time    `json:"published_at"`
}

// DatasetRegisteredEvent announces an uploaded dataset.
type DatasetRegisteredEvent struct {
	Origin  string         `json:"origin"`
	Dataset models.Dataset `json:"dataset"`
}

// SimulationCompletedEvent summarizes a dataset replay.
type SimulationCompletedEvent struct {
	Origin     string    `json:"origin"`
	DatasetID  string    `json:"dataset_id,omitempty"`
	Source     string    `json:"dataset_source"`
	AttackType string    `json:"attack_type,omitempty"`
	Ingested   int       `json:"ingested"`
	FinishedAt time.Time `json:"finished_at"`
}
