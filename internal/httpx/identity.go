package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/rs/zerolog"
)

const (
	HeaderShopperID = "X-Shopper-ID"
	HeaderUserRole  = "X-User-Role"
)

type actorKey struct{}

// Identity takes the identity resolved by the upstream auth layer from
// request headers. A missing id or an unknown role is rejected with 401; a
// missing role means customer.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderShopperID)
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: "Unauthorized", Message: "missing " + HeaderShopperID})
			return
		}
		role := orders.Role(r.Header.Get(HeaderUserRole))
		if role == "" {
			role = orders.RoleCustomer
		}
		if !role.Valid() {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: "Unauthorized", Message: "unknown role " + string(role)})
			return
		}
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("actor", id).Str("role", string(role))
		})
		ctx := context.WithValue(r.Context(), actorKey{}, orders.Actor{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) orders.Actor {
	a, _ := ctx.Value(actorKey{}).(orders.Actor)
	return a
}
