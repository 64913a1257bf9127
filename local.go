package tutorauth

import (
	"net/http"
)

// Handlers for local (email and password) accounts

// HandleRegister handles POST /api/auth/register
func (a *API) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	cred, msg, err := a.Auth.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	view := cred.Projection()
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: msg, User: &view})
}

// HandleVerifyEmail handles GET /api/auth/verify-email?token=...
func (a *API) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "Verification token is required")
		return
	}
	if err := a.Auth.VerifyEmail(r.Context(), token); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Email verified successfully"})
}

type emailRequest struct {
	Email string `json:"email"`
}

// HandleResendVerification handles POST /api/auth/resend-verification
func (a *API) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	if err := a.Auth.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Verification email sent successfully"})
}

// HandleSkipVerification handles POST /api/auth/skip-verification
func (a *API) HandleSkipVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	if err := a.Auth.SkipVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Email verification skipped for development"})
}

// HandleForgotPassword handles POST /api/auth/forgot-password. The answer is
// the same whether or not the account exists.
func (a *API) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	if err := a.Auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "If an account exists for that email, a password reset link has been sent.",
	})
}

// HandleResetPassword handles POST /api/auth/reset-password
func (a *API) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	if err := a.Auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Password reset successfully"})
}

// HandleChangePassword handles PUT /api/auth/password for a logged in user
func (a *API) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	userID := UserIDFromContext(r.Context())
	if err := a.Auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Password changed successfully"})
}

// HandleSetPassword handles POST /api/auth/set-password, adding a local
// password to a Google-only account.
func (a *API) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	userID := UserIDFromContext(r.Context())
	if err := a.Auth.SetPassword(r.Context(), userID, req.Password); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Password set successfully"})
}
