/*
auth.go - Actor resolution from trusted proxy headers

PURPOSE:
  Resolves the acting identity once per request and stores it in the
  request context. Authentication itself happens upstream (reverse proxy
  or gateway); this layer trusts the forwarded identity headers.

HEADERS:
  X-Actor-Role:    "admin" or "church" (required on mutating endpoints)
  X-Actor-Church:  Church id, required for church actors
  X-Actor-Email:   Recorded as created_by / closed_by on writes

AUTHORIZATION:
  Church actors are confined to their own church. Admins may act on any
  church. Handlers call requireActor before any write; read endpoints
  accept anonymous requests.

SEE ALSO:
  - treasury/types.go: Actor.CanActOn
*/
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ipupy/tesoreria/treasury"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorMiddleware parses the identity headers into a treasury.Actor and
// stores it in the request context. Requests without a role header pass
// through anonymously; requireActor rejects them later if the endpoint
// needs an identity.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := treasury.Role(r.Header.Get("X-Actor-Role"))
		if role != treasury.RoleAdmin && role != treasury.RoleChurch {
			next.ServeHTTP(w, r)
			return
		}

		actor := treasury.Actor{
			Role:  role,
			Email: r.Header.Get("X-Actor-Email"),
		}
		if role == treasury.RoleChurch {
			churchID, err := strconv.ParseInt(r.Header.Get("X-Actor-Church"), 10, 64)
			if err != nil || churchID <= 0 {
				writeError(w, http.StatusUnauthorized, "Church actor requires a valid X-Actor-Church header", nil)
				return
			}
			actor.ChurchID = churchID
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the resolved actor, if any.
func actorFrom(ctx context.Context) (treasury.Actor, bool) {
	a, ok := ctx.Value(actorKey).(treasury.Actor)
	return a, ok
}

// requireActor writes a 401 and returns false when the request carries no
// resolved identity.
func requireActor(w http.ResponseWriter, r *http.Request) (treasury.Actor, bool) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing or invalid X-Actor-Role header", nil)
	}
	return actor, ok
}
