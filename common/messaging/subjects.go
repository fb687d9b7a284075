package messaging

// Subjects follow the pattern {domain}.{resource}.{action}.
const (
	// SubjectFlowAlertsCreated carries every newly persisted alert.
	SubjectFlowAlertsCreated = "flow.alerts.created"

	// SubjectFlowDatasetsRegistered announces a dataset accepted by upload.
	SubjectFlowDatasetsRegistered = "flow.datasets.registered"

	// SubjectFlowSimulationsCompleted carries the summary of a dataset replay.
	SubjectFlowSimulationsCompleted = "flow.simulations.completed"
)

// SubjectFlowAlertsCreatedAll matches every severity scoped created subject.
const SubjectFlowAlertsCreatedAll = SubjectFlowAlertsCreated + ".>"

// QueueAlertConsumers is the queue group for load-balanced alert consumers.
const QueueAlertConsumers = "flow-alert-consumers"

// AlertSeveritySubject scopes the created subject by severity, e.g.
// flow.alerts.created.critical, so consumers can subscribe to one level.
func AlertSeveritySubject(severity string) string {
	return SubjectFlowAlertsCreated + "." + severity
}
