package httputil

import (
	"encoding/json"
	"net/http"
)

// RespondWithError writes an error response in JSON format
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// RespondWithMessage writes a {"message": ...} body, optionally merged with extra fields.
func RespondWithMessage(w http.ResponseWriter, code int, message string, extra map[string]interface{}) {
	body := map[string]interface{}{"message": message}
	for k, v := range extra {
		body[k] = v
	}
	RespondWithJSON(w, code, body)
}

// RespondWithJSON writes a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondNoContent writes a 204 with an empty body.
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
