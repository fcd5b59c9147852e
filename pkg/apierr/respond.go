package apierr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// graphQLJSON is the media type GraphQL-over-HTTP clients send in Accept
// when they want a GraphQL-shaped JSON error envelope.
const graphQLJSON = "application/graphql-response+json"

// Envelope is the JSON body returned for non-auth errors.
type Envelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// GraphQLEnvelope is the body returned for authentication failures,
// which preserve GraphQL conventions (HTTP 200, errors array) rather
// than using a 4xx/5xx status.
type GraphQLEnvelope struct {
	Errors []GraphQLError `json:"errors"`
}

type GraphQLError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions"`
}

// Respond writes a tenant-resolution / handler-build error as an HTTP
// status-coded response, negotiated on Accept: JSON for API clients,
// an HTML page for browsers. In development the original message is
// returned; otherwise NotFound/AccessDenied families are safe to show
// verbatim and everything else is sanitized.
func Respond(w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string, err error, development bool) {
	apiErr, ok := As(err)
	if !ok {
		apiErr = Wrap(KindInternal, "unexpected error", err)
	}

	message := apiErr.Message
	if !development && !safeToExpose(apiErr.Kind) {
		message = "an internal error occurred"
	}

	if logger != nil {
		logger.Error("request failed",
			"code", apiErr.Code,
			"status", apiErr.Status(),
			"request_id", requestID,
			"error", apiErr.Error(),
		)
	}

	if wantsHTML(r) {
		respondHTML(w, apiErr.Status(), apiErr.Code, message, requestID)
		return
	}

	respondJSON(w, apiErr.Status(), Envelope{
		Error:     apiErr.Code,
		Message:   message,
		RequestID: requestID,
	})
}

// RespondAuthFailure writes a GraphQL-style error envelope with HTTP 200,
// per the convention GraphQL-over-HTTP servers follow for auth failures.
func RespondAuthFailure(w http.ResponseWriter, code string, message string) {
	respondJSON(w, http.StatusOK, GraphQLEnvelope{
		Errors: []GraphQLError{{
			Message:    message,
			Extensions: map[string]interface{}{"code": code},
		}},
	})
}

func safeToExpose(kind Kind) bool {
	switch kind {
	case KindNotFound, KindNoValidSchemas, KindAccessDenied, KindAdminAuthRequired:
		return true
	default:
		return false
	}
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	if strings.Contains(accept, "application/json") || strings.Contains(accept, graphQLJSON) || strings.Contains(accept, "*/*") {
		return false
	}
	return strings.Contains(accept, "text/html")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding error response", "error", err)
	}
}

func respondHTML(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!doctype html><html><head><title>%d %s</title></head>`+
		`<body><h1>%s</h1><p>%s</p><p><small>request id: %s</small></p></body></html>`,
		status, code, code, message, requestID)
}
