package api

import "net/http"

const (
	scopeHeaderName = "X-Scope-ID"
	csrfHeaderName  = "X-CSRF-Token"
)

// IssueCSRF handles GET /csrf. Every call mints a fresh token for the
// calling client scope, replacing whatever that scope held before.
func (a *API) IssueCSRF(w http.ResponseWriter, r *http.Request) {
	scope := r.Header.Get(scopeHeaderName)
	if scope == "" {
		writeError(w, http.StatusBadRequest, "missing "+scopeHeaderName+" header")
		return
	}
	writeJSON(w, http.StatusOK, CSRFResponse{Token: a.csrf.Issue(scope)})
}

// CSRFMiddleware enforces per-scope CSRF tokens on mutating requests. Safe
// methods are exempt; everything else must present the scope header and the
// token issued to that scope. Cross-origin requests cannot set custom
// headers, so a forged simple POST never clears this check.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		scope := r.Header.Get(scopeHeaderName)
		if scope == "" {
			writeError(w, http.StatusForbidden, "missing "+scopeHeaderName+" header")
			return
		}

		if !a.csrf.Check(scope, r.Header.Get(csrfHeaderName)) {
			writeError(w, http.StatusForbidden, "invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
