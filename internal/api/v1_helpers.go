package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type apiEnvelope struct {
	Meta  map[string]interface{} `json:"_meta,omitempty"`
	Data  interface{}            `json:"data,omitempty"`
	Error interface{}            `json:"error,omitempty"`
}

func writeAPIResponse(w http.ResponseWriter, data interface{}, meta map[string]interface{}) {
	json.NewEncoder(w).Encode(apiEnvelope{Meta: meta, Data: data})
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiEnvelope{
		Error: map[string]string{"message": message},
	})
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func parseBoolParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "1" || v == "true"
}

// parseIDParams collects repeated ?id= query values, dropping anything
// non-numeric.
func parseIDParams(r *http.Request) []int64 {
	var ids []int64
	for _, v := range r.URL.Query()["id"] {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}
