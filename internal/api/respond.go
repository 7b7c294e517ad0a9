package api

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/hlog"

	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
)

// maxBodyBytes caps request bodies; a lead form is a few hundred bytes.
const maxBodyBytes = 64 << 10

var encodeFailureBody = []byte(`{"error":"` + errx.SystemErrorMessage + `"}` + "\n")

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// JSON writes v as a JSON response with the given status code. A value that
// cannot be encoded is logged and answered with a 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(status)
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(encodeFailureBody)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

// Error writes err as a JSON error body. Internal details are logged, never returned.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	JSON(w, r, status, errorBody{
		Error:  errx.MessageOf(err),
		Fields: errx.FieldsOf(err),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := sonic.ConfigDefault.NewDecoder(body).Decode(v); err != nil {
		return errx.NewValidation("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
