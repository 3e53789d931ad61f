package api

import (
	"net/http"

	"github.com/atrium-works/atrium/pkg/contextkeys"
	"github.com/atrium-works/atrium/pkg/httputil"
	"github.com/atrium-works/atrium/pkg/identity"
)

// currentUser extracts the authenticated user, writing a 401 when the
// request carries no valid session.
func currentUser(w http.ResponseWriter, r *http.Request) (*identity.User, bool) {
	user := contextkeys.UserFrom(r.Context())
	if user == nil {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return nil, false
	}
	return user, true
}
