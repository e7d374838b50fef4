package api

import (
	"context"
	"net/http"
	"strings"
)

// PasswordResetCompleter is implemented by providers that can finish a
// password reset from a previously issued one-time token.
type PasswordResetCompleter interface {
	CompletePasswordReset(ctx context.Context, email, token, newPassword string) error
}

// SignIn handles POST /auth/signin.
func (a *API) SignIn(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SignInRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := a.core.SignIn(r.Context(), req.Email, req.Password); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		State:    string(a.core.CurrentState()),
		Snapshot: a.core.Snapshot(),
	})
}

// SignUp handles POST /auth/signup.
func (a *API) SignUp(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SignUpRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := a.core.SignUp(r.Context(), req.Email, req.Password, req.Profile); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{
		State:    string(a.core.CurrentState()),
		Snapshot: a.core.Snapshot(),
	})
}

// SignOut handles POST /auth/signout. Local teardown always happens, so the
// CSRF scope for the calling client is cleared even when the provider call
// fails.
func (a *API) SignOut(w http.ResponseWriter, r *http.Request) {
	err := a.core.SignOut(r.Context())
	if scope := r.Header.Get(scopeHeaderName); scope != "" {
		a.csrf.Clear(scope)
	}
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "signed out"})
}

// ResetPassword handles POST /auth/reset-password. The response is identical
// whether or not the email maps to an account.
func (a *API) ResetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ResetPasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if err := a.core.ResetPassword(r.Context(), req.Email); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "reset requested"})
}

// CompleteReset handles POST /auth/reset-password/complete.
func (a *API) CompleteReset(w http.ResponseWriter, r *http.Request) {
	if a.resets == nil {
		writeError(w, http.StatusNotImplemented, "password reset completion is not supported")
		return
	}
	req, ok := decodeJSON[CompleteResetRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new password is required")
		return
	}
	if err := a.resets.CompletePasswordReset(r.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "password reset"})
}

// UpdatePassword handles POST /auth/update-password for the signed-in user.
func (a *API) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UpdatePasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "new password is required")
		return
	}
	if err := a.core.UpdatePassword(r.Context(), req.NewPassword); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "password updated"})
}
