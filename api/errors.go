package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// CodeInternal is reported for failures that carry no typed kind.
const CodeInternal = "INTERNAL_ERROR"

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	var typed *interfaces.Error
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError
	}
	switch typed.Kind {
	case interfaces.KindInvalidArgument:
		return http.StatusBadRequest
	case interfaces.KindUnauthorized:
		return http.StatusUnauthorized
	case interfaces.KindNotFound:
		return http.StatusNotFound
	case interfaces.KindInProgress:
		return http.StatusConflict
	case interfaces.KindLedgerRejected:
		if strings.Contains(typed.LedgerStatus, "INSUFFICIENT") {
			return http.StatusPaymentRequired
		}
		return http.StatusConflict
	case interfaces.KindLedgerTransient, interfaces.KindOperatorUnavailable:
		return http.StatusServiceUnavailable
	case interfaces.KindOutcomeUnknown:
		return http.StatusGatewayTimeout
	case interfaces.KindAlreadySatisfied:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope for err. Only the client-safe message
// of typed errors reaches the response; internal causes are logged.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: "internal error", Code: CodeInternal}

	var typed *interfaces.Error
	if errors.As(err, &typed) {
		resp.Code = string(typed.Kind)
		resp.Error = typed.Message
		if resp.Error == "" {
			resp.Error = strings.ToLower(strings.ReplaceAll(string(typed.Kind), "_", " "))
		}
		resp.LedgerStatus = typed.LedgerStatus
		resp.TransactionID = typed.TxID
	}

	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "err", err, "code", resp.Code, "status", status)
	} else {
		log.Debug("Request rejected", "err", err, "code", resp.Code, "status", status)
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON reads a JSON request body of at most MaxBodySize bytes into v.
// An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return interfaces.NewError(interfaces.KindInvalidArgument, "malformed request body", err)
	}
	return nil
}
