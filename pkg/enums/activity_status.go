package enums

// ActivityStatus is the outcome recorded on an activity entry.
type ActivityStatus string

const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusFailed  ActivityStatus = "failed"
	ActivityStatusWarning ActivityStatus = "warning"
)

var validActivityStatuses = []ActivityStatus{
	ActivityStatusSuccess,
	ActivityStatusFailed,
	ActivityStatusWarning,
}

func (s ActivityStatus) IsValid() bool {
	for _, candidate := range validActivityStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
