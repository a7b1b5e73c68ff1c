package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

type subjectKey struct{}

// WithSubject returns a copy of ctx carrying subject.
func WithSubject(ctx context.Context, subject interfaces.AuthenticatedSubject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject stored by Middleware.
func SubjectFromContext(ctx context.Context) (interfaces.AuthenticatedSubject, bool) {
	subject, ok := ctx.Value(subjectKey{}).(interfaces.AuthenticatedSubject)
	return subject, ok && subject.UserID != ""
}

// Middleware rejects requests without a valid bearer token and stores the
// verified subject in the request context.
func Middleware(verifier interfaces.SubjectVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := verifier.Verify(r.Context(), bearerToken(r))
			if err != nil {
				log.Debug("Rejected request", "err", err, "path", r.URL.Path)
				api.WriteError(w, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireSubject returns the request's subject, answering 401 when the
// request did not pass through Middleware.
func RequireSubject(w http.ResponseWriter, r *http.Request, log *slog.Logger) (interfaces.AuthenticatedSubject, bool) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		api.WriteError(w, log, interfaces.NewError(interfaces.KindUnauthorized, "authentication required", nil))
	}
	return subject, ok
}
