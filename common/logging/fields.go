package logging

import "log/slog"

// Common field names so every component logs the same keys.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldError       = "error"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldDatasetID   = "dataset_id"
	FieldDatasetKind = "dataset_kind"
	FieldSource      = "source"
	FieldAlertID     = "alert_id"
	FieldAttackType  = "attack_type"
	FieldSeverity    = "severity"
	FieldRows        = "rows"
	FieldSkipped     = "skipped"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Error returns a slog attribute for an error. A nil error renders as "".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

func DatasetID(id string) slog.Attr {
	return slog.String(FieldDatasetID, id)
}

func DatasetKind(kind string) slog.Attr {
	return slog.String(FieldDatasetKind, kind)
}

// Source names where rows came from (a path, an upload, "synthetic").
func Source(src string) slog.Attr {
	return slog.String(FieldSource, src)
}

func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}

func AttackType(t string) slog.Attr {
	return slog.String(FieldAttackType, t)
}

func Severity(s string) slog.Attr {
	return slog.String(FieldSeverity, s)
}

// Rows returns a slog attribute for a processed row count.
func Rows(n int) slog.Attr {
	return slog.Int(FieldRows, n)
}

func Skipped(n int) slog.Attr {
	return slog.Int(FieldSkipped, n)
}
