package api

import "sessioncore/auth"

// SignInRequest is the JSON body for POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpRequest is the JSON body for POST /auth/signup.
type SignUpRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Profile  map[string]string `json:"profile,omitempty"`
}

// ResetPasswordRequest is the JSON body for POST /auth/reset-password.
type ResetPasswordRequest struct {
	Email string `json:"email"`
}

// CompleteResetRequest is the JSON body for POST /auth/reset-password/complete.
type CompleteResetRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// UpdatePasswordRequest is the JSON body for POST /auth/update-password.
type UpdatePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ActivityRequest is the JSON body for POST /session/activity.
type ActivityRequest struct {
	Signal string `json:"signal"`
}

// VisibilityRequest is the JSON body for POST /session/visibility.
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// SessionResponse is returned from GET /session. The snapshot is the same
// shape delivered to /session/watch subscribers.
type SessionResponse struct {
	State    string        `json:"state"`
	Snapshot auth.Snapshot `json:"snapshot"`
}

// CSRFResponse is returned from GET /csrf.
type CSRFResponse struct {
	Token string `json:"token"`
}

// StatusResponse is returned from endpoints that have no payload of their own.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
