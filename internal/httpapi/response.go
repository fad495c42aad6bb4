package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	opcua "github.com/edgeo-scada/opcua-typesys"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a standardized error response with request tracking.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(RequestIDKey).(string)
	WriteJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":       code,
			"message":    message,
			"request_id": requestID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// writeStatusError answers with the HTTP status matching the OPC UA status
// carried by err.
func writeStatusError(w http.ResponseWriter, r *http.Request, err error) {
	sc := opcua.StatusCodeOf(err)
	WriteError(w, r, httpStatus(sc), sc.String(), err.Error())
}

func httpStatus(sc opcua.StatusCode) int {
	switch sc {
	case opcua.StatusBadNodeIdUnknown, opcua.StatusBadDataTypeIdUnknown:
		return http.StatusNotFound
	case opcua.StatusBadNodeIdInvalid, opcua.StatusBadIndexRangeInvalid, opcua.StatusBadSyntaxError,
		opcua.StatusBadAttributeIdInvalid:
		return http.StatusBadRequest
	case opcua.StatusBadNotWritable, opcua.StatusBadWriteNotSupported:
		return http.StatusForbidden
	case opcua.StatusBadIndexRangeNoData, opcua.StatusBadTypeMismatch, opcua.StatusBadOutOfRange,
		opcua.StatusBadNotSupported:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
