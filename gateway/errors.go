package gateway

import "fmt"

// Error describes a non-2xx response from the remote tasks service.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote tasks api: status %d: %s", e.Status, e.Message)
}
