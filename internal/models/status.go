package models

// Status is the process-wide indicator the operator sees.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether s is an end-of-transaction status that
// auto-reverts to idle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// IndicatorColor is the indicator dot color for s.
func (s Status) IndicatorColor() string {
	switch s {
	case StatusSuccess:
		return "#33cc33"
	case StatusError:
		return "#ff0000"
	default:
		return "#808080"
	}
}
