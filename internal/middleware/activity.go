package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/cofounder-match/internal/auth"
)

// ActivityRecorder is the part of the member store that Activity needs.
type ActivityRecorder interface {
	TouchMember(ctx context.Context, userID string, at time.Time) error
}

// Activity records that the authenticated caller was active now. It must run
// after auth.RequireAuth. A failed write is logged and the request goes on:
// activity only feeds the active-user statistics.
func Activity(recorder ActivityRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := auth.UserIDFromContext(r.Context()); ok {
				if err := recorder.TouchMember(r.Context(), userID, time.Now()); err != nil {
					logger.Warn("failed to record member activity",
						slog.String("user_id", userID),
						slog.String("error", err.Error()),
					)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
