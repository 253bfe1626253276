package identity

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 72
)

// Controller exposes the identity commands over HTTP.
type Controller struct {
	gate           *Gate
	register       *RegisterUserHandler
	login          *LoginHandler
	refresh        *RefreshSessionHandler
	verifyEmail    *VerifyEmailHandler
	forgotPassword *ForgotPasswordHandler
	resetPassword  *ResetPasswordHandler
	changePassword *ChangePasswordHandler
	profile        *GetProfileHandler
	updateProfile  *UpdateProfileHandler
	admin          *AdminUsersHandler
	logger         Logger
}

// NewController wires every handler from deps.
func NewController(deps Dependencies) *Controller {
	deps = deps.withDefaults()
	return &Controller{
		gate:           NewGate(deps.Tokens, deps.Logger),
		register:       NewRegisterUserHandler(deps),
		login:          NewLoginHandler(deps),
		refresh:        NewRefreshSessionHandler(deps),
		verifyEmail:    NewVerifyEmailHandler(deps),
		forgotPassword: NewForgotPasswordHandler(deps),
		resetPassword:  NewResetPasswordHandler(deps),
		changePassword: NewChangePasswordHandler(deps),
		profile:        NewGetProfileHandler(deps),
		updateProfile:  NewUpdateProfileHandler(deps),
		admin:          NewAdminUsersHandler(deps),
		logger:         deps.Logger,
	}
}

// Gate returns the authentication gate used by protected routes.
func (ctrl *Controller) Gate() *Gate {
	return ctrl.gate
}

// RegisterRoutes mounts the auth, user and admin routes on r.
func RegisterRoutes[T any](r router.Router[T], ctrl *Controller) {
	authenticated := Authenticated(ctrl.gate)
	adminOnly := Chain(authenticated, RequireRoles(AdminOnly))

	auth := r.Group("/auth")
	auth.Post("/register", ctrl.Register).SetName("auth.register")
	auth.Post("/login", ctrl.Login).SetName("auth.login")
	auth.Post("/refresh", ctrl.Refresh).SetName("auth.refresh")
	auth.Post("/verify-email", ctrl.VerifyEmail).SetName("auth.verify-email")
	auth.Post("/forgot-password", ctrl.ForgotPassword).SetName("auth.forgot-password")
	auth.Post("/reset-password", ctrl.ResetPassword).SetName("auth.reset-password")
	auth.Get("/profile", authenticated(ctrl.Profile)).SetName("auth.profile")

	users := r.Group("/users")
	users.Put("/profile", authenticated(ctrl.UpdateProfile)).SetName("users.profile.update")
	users.Put("/password", authenticated(ctrl.ChangePassword)).SetName("users.password.update")

	admin := r.Group("/admin")
	admin.Get("/users/:id", adminOnly(ctrl.AdminGetUser)).SetName("admin.users.get")
	admin.Put("/users/:id", adminOnly(ctrl.AdminUpdateUser)).SetName("admin.users.update")
	admin.Delete("/users/:id", adminOnly(ctrl.AdminDeleteUser)).SetName("admin.users.delete")
	admin.Patch("/users/:id/role", adminOnly(ctrl.AdminChangeRole)).SetName("admin.users.role")
	admin.Patch("/users/:id/status", adminOnly(ctrl.AdminToggleStatus)).SetName("admin.users.status")
}

var errInvalidBody = goerrors.New("invalid request body", goerrors.CategoryBadInput).
	WithTextCode(string(KindValidation)).
	WithCode(goerrors.CodeBadRequest)

func parseBody(c router.Context, payload interface{ Validate() error }) error {
	if err := c.Bind(payload); err != nil {
		return errInvalidBody
	}
	return payload.Validate()
}

func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(passwordMinLength, passwordMaxLength),
	}
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.EmailFormat),
		validation.Field(&r.Password, passwordRules()...),
	)
}

func (ctrl *Controller) Register(c router.Context) error {
	payload := new(RegisterRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	var user *User
	err := ctrl.register.Execute(c.Context(), RegisterUserMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusCreated,
		"Registration successful. Please check your email to verify your account.",
		map[string]any{"user": user})
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required),
	)
}

func (ctrl *Controller) Login(c router.Context) error {
	payload := new(LoginRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	var resp *LoginResponse
	err := ctrl.login.Execute(c.Context(), LoginMessage{
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(r *LoginResponse) {
			resp = r
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Login successful", sessionPayload(resp))
}

// RefreshRequest carries a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (ctrl *Controller) Refresh(c router.Context) error {
	payload := new(RefreshRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	var resp *LoginResponse
	err := ctrl.refresh.Execute(c.Context(), RefreshSessionMessage{
		RefreshToken: payload.RefreshToken,
		OnResponse: func(r *LoginResponse) {
			resp = r
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Session refreshed", sessionPayload(resp))
}

func sessionPayload(resp *LoginResponse) map[string]any {
	return map[string]any{
		"user":         resp.User,
		"accessToken":  resp.Tokens.AccessToken,
		"refreshToken": resp.Tokens.RefreshToken,
	}
}

// TokenRequest carries a single-use token.
type TokenRequest struct {
	Token string `json:"token"`
}

func (r TokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (ctrl *Controller) VerifyEmail(c router.Context) error {
	payload := new(TokenRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	if err := ctrl.verifyEmail.Execute(c.Context(), VerifyEmailMessage{Token: payload.Token}); err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Email verified successfully", nil)
}

// ForgotPasswordRequest starts the password reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
	)
}

func (ctrl *Controller) ForgotPassword(c router.Context) error {
	payload := new(ForgotPasswordRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	if err := ctrl.forgotPassword.Execute(c.Context(), ForgotPasswordMessage{Email: payload.Email}); err != nil {
		return err
	}

	return respond(c, http.StatusOK,
		"If an account exists with this email, a password reset link has been sent.", nil)
}

// ResetPasswordRequest completes the password reset flow.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, passwordRules()...),
	)
}

func (ctrl *Controller) ResetPassword(c router.Context) error {
	payload := new(ResetPasswordRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	err := ctrl.resetPassword.Execute(c.Context(), ResetPasswordMessage{
		Token:    payload.Token,
		Password: payload.Password,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Password reset successfully", nil)
}

func (ctrl *Controller) Profile(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	var user *User
	err = ctrl.profile.Execute(c.Context(), GetProfileMessage{
		UserID: auth.UserID,
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "", map[string]any{"user": user})
}

// UpdateProfileRequest edits the caller's profile.
type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (r UpdateProfileRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Length(3, 254), is.EmailFormat),
	)
}

func (ctrl *Controller) UpdateProfile(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	payload := new(UpdateProfileRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	var user *User
	err = ctrl.updateProfile.Execute(c.Context(), UpdateProfileMessage{
		UserID: auth.UserID,
		Name:   payload.Name,
		Email:  payload.Email,
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Profile updated successfully", map[string]any{"user": user})
}

// ChangePasswordRequest changes the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, passwordRules()...),
	)
}

func (ctrl *Controller) ChangePassword(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	payload := new(ChangePasswordRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	err = ctrl.changePassword.Execute(c.Context(), ChangePasswordMessage{
		UserID:          auth.UserID,
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "Password changed successfully", nil)
}

func (ctrl *Controller) AdminGetUser(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	var user *User
	err = ctrl.admin.GetUser(c.Context(), AdminGetUserMessage{
		Actor:  auth,
		UserID: c.Param("id"),
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "", map[string]any{"user": user})
}

// AdminUpdateUserRequest is the administrative edit payload. Omitted fields
// are left untouched.
type AdminUpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

func (r AdminUpdateUserRequest) Validate() error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		r.Name = &name
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.EmailFormat),
		validation.Field(&r.Role, validation.NilOrNotEmpty, validation.By(validRole)),
	)
}

func (r AdminUpdateUserRequest) toUpdate() AdminUserUpdate {
	update := AdminUserUpdate{
		Name:     r.Name,
		Email:    r.Email,
		IsActive: r.IsActive,
	}
	if r.Role != nil {
		if role, err := ParseRole(*r.Role); err == nil {
			update.Role = &role
		}
	}
	return update
}

func (ctrl *Controller) AdminUpdateUser(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	payload := new(AdminUpdateUserRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	var user *User
	err = ctrl.admin.UpdateUser(c.Context(), AdminUpdateUserMessage{
		Actor:  auth,
		UserID: c.Param("id"),
		Update: payload.toUpdate(),
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "User updated successfully", map[string]any{"user": user})
}

func (ctrl *Controller) AdminDeleteUser(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	err = ctrl.admin.DeleteUser(c.Context(), AdminDeleteUserMessage{
		Actor:  auth,
		UserID: c.Param("id"),
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "User deleted successfully", nil)
}

// ChangeRoleRequest sets a user's role.
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

func (r ChangeRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.By(validRole)),
	)
}

func (ctrl *Controller) AdminChangeRole(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	payload := new(ChangeRoleRequest)
	if err := parseBody(c, payload); err != nil {
		return err
	}

	role, err := ParseRole(payload.Role)
	if err != nil {
		return err
	}

	var user *User
	err = ctrl.admin.ChangeRole(c.Context(), AdminChangeRoleMessage{
		Actor:  auth,
		UserID: c.Param("id"),
		Role:   role,
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, "User role updated successfully", map[string]any{"user": user})
}

func (ctrl *Controller) AdminToggleStatus(c router.Context) error {
	auth, err := CurrentIdentity(c)
	if err != nil {
		return err
	}

	var user *User
	err = ctrl.admin.ToggleStatus(c.Context(), AdminToggleStatusMessage{
		Actor:  auth,
		UserID: c.Param("id"),
		OnResponse: func(u *User) {
			user = u
		},
	})
	if err != nil {
		return err
	}

	state := "deactivated"
	if user.IsActive {
		state = "activated"
	}

	return respond(c, http.StatusOK, "User "+state+" successfully", map[string]any{"user": user})
}

func validRole(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	default:
		return errors.New("must be a string")
	}

	if _, err := ParseRole(strings.TrimSpace(s)); err != nil {
		return errors.New("must be ADMIN or USER")
	}
	return nil
}
