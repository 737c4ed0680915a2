package httpx

import (
	"encoding/json"
	"net/http"
)

// MessageResponse is the body of every handler-level JSON response in the
// auth flow: informational notes and failures alike, distinguished only by
// status code.
type MessageResponse struct {
	Message string `json:"message"`
}

// JSONMessage writes a {"message": ...} body with the given status.
func JSONMessage(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(MessageResponse{Message: message})
}
