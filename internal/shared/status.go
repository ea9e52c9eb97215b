package shared

// RecordStatus replaces soft-delete flags. Repositories only return
// Active rows from lookups used by mutations.
type RecordStatus string

const (
	StatusActive   RecordStatus = "active"
	StatusArchived RecordStatus = "archived"
)

// Valid reports whether s is a known status.
func (s RecordStatus) Valid() bool {
	return s == StatusActive || s == StatusArchived
}
