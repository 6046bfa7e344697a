package api

import "fmt"

// AuthError means the credential exchange itself was rejected. It is fatal
// during setup and surfaced to the user.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed: status %d: %s", e.StatusCode, e.Body)
}

// CommandError means the server rejected (or mangled the response to) a
// start/stop command. Description carries the server-supplied reason when one
// was given.
type CommandError struct {
	Description string
}

func (e *CommandError) Error() string {
	if e.Description == "" {
		return "command rejected: no error description in response"
	}
	return "command rejected: " + e.Description
}
