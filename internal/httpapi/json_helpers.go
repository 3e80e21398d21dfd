package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"

	"guildgate/internal/apierr"
	"guildgate/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeCSV(w http.ResponseWriter, status int, payload interface{}) {
	marshaler, ok := payload.(CSVMarshaler)
	if !ok {
		writeJSON(w, status, payload)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(status)
	writer := csv.NewWriter(w)
	_ = writer.Write(marshaler.CSVHeader())
	_ = writer.WriteAll(marshaler.CSVRecords())
	writer.Flush()
}

// writeAPIError maps any failure onto the uniform error envelope. Taxonomy
// failures pass through verbatim; datastore identifier-cast failures and
// lookup misses render as 404; everything else is wrapped as a server error
// with the original logged, so no raw failure reaches a client.
func (h *Handler) writeAPIError(w http.ResponseWriter, err error) {
	typed := h.translateError(err)
	if h.Metrics != nil {
		h.Metrics.ObserveAPIError(string(typed.Code))
	}
	writeJSON(w, typed.Status, typed.Envelope())
}

func (h *Handler) translateError(err error) *apierr.Error {
	if typed, ok := apierr.As(err); ok {
		return typed
	}
	if errors.Is(err, storage.ErrInvalidID) || errors.Is(err, storage.ErrNotFound) {
		return apierr.NotFound("")
	}
	h.logger().Error("unhandled request failure", "error", err)
	return apierr.Server(err.Error())
}
