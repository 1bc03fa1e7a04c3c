package storage

// ErrNotFound is returned when a transcript doesn't exist in the store.
type ErrNotFound struct {
	ID string
}

func (e ErrNotFound) Error() string {
	if e.ID == "" {
		return "transcript not found"
	}

	return "transcript not found: " + e.ID
}
