package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"selefli/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const defaultMaxUploadSize = 10 << 20

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy onto status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	var cerr *service.ConflictError
	switch {
	case errors.As(err, &verr):
		body := map[string]any{"error": verr.Message}
		if verr.Field != "" {
			body["fields"] = map[string][]string{verr.Field: {verr.Message}}
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadRequest, cerr.Message)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUnavailable):
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("upstream unavailable")
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// queryValue returns the first non-empty value among the given names, so
// snake_case and camelCase parameters are both accepted.
func queryValue(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func queryInt(r *http.Request, names ...string) (int, error) {
	raw := queryValue(r, names...)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", names[0])
	}
	return n, nil
}

func pagination(r *http.Request) (page, pageSize int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if pageSize, err = queryInt(r, "page_size", "pageSize"); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// firstNonEmpty picks the first set value of a field sent under several names.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type upload struct {
	Filename string
	Data     []byte
}

// readUpload reads one file part of a multipart request, bounded by the
// configured upload size.
func (s *HTTPServer) readUpload(w http.ResponseWriter, r *http.Request, field string) (*upload, error) {
	limit := s.cfg.HTTP.MaxUploadSize
	if limit <= 0 {
		limit = defaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &service.ValidationError{Field: field, Message: fmt.Sprintf("File exceeds the %d byte limit.", limit)}
		}
		return nil, &service.ValidationError{Field: field, Message: "Expected a multipart/form-data body."}
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, &service.ValidationError{Field: field, Message: fmt.Sprintf("File required (field name: '%s')", field)}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &upload{Filename: header.Filename, Data: data}, nil
}
