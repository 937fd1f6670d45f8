package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/chestxray/internal/backend/session"
	"github.com/jo-hoe/chestxray/internal/common"
	"github.com/jo-hoe/chestxray/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	SessionCookieName = "session"
	uploadFieldName   = "file"
	loginAction       = "login"
)

type APIService struct {
	coreService  *core.CoreService
	secureCookie bool
}

type authRequest struct {
	Action   string `json:"action"`
	Username string `json:"_username" validate:"required"`
	Password string `json:"user_pass" validate:"required"`
}

type signupRequest struct {
	Username string `json:"_username" validate:"required"`
	Password string `json:"user_pass" validate:"required"`
	FullName string `json:"fullName" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Message    string `json:"message"`
	UID        string `json:"uid"`
	Prediction any    `json:"prediction"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService:  coreService,
		secureCookie: config.Session.SecureCookie,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)

	e.POST("/api/auth", s.authHandler)
	e.POST("/api/signup", s.signupHandler)
	e.POST("/api/logout", s.logoutHandler)
	e.GET("/api/user", s.userHandler)
	e.GET("/api/reports", s.reportsHandler)
	e.POST("/api/upload", s.uploadHandler)
}

func (s *APIService) probeHandler(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "API Service is running")
}

func (s *APIService) authHandler(ctx echo.Context) error {
	var request authRequest
	if err := ctx.Bind(&request); err != nil {
		return s.errorJSON(ctx, "authHandler", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	if request.Action != loginAction {
		return s.errorJSON(ctx, "authHandler", fmt.Errorf("%w: unsupported action %q", common.ErrValidation, request.Action))
	}
	if err := ctx.Validate(&request); err != nil {
		return s.errorJSON(ctx, "authHandler", err)
	}

	token, err := s.coreService.Login(ctx.Request().Context(), request.Username, request.Password)
	if err != nil {
		return s.errorJSON(ctx, "authHandler", err)
	}

	ctx.SetCookie(s.sessionCookie(token, int(s.coreService.SessionTTL().Seconds())))
	return ctx.JSON(http.StatusOK, messageResponse{Message: "Login successful"})
}

func (s *APIService) signupHandler(ctx echo.Context) error {
	var request signupRequest
	if err := ctx.Bind(&request); err != nil {
		return s.errorJSON(ctx, "signupHandler", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	if err := ctx.Validate(&request); err != nil {
		return s.errorJSON(ctx, "signupHandler", err)
	}

	if err := s.coreService.Signup(ctx.Request().Context(), request.Username, request.Password, request.FullName); err != nil {
		return s.errorJSON(ctx, "signupHandler", err)
	}
	return ctx.JSON(http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

func (s *APIService) logoutHandler(ctx echo.Context) error {
	if cookie, err := ctx.Cookie(SessionCookieName); err == nil {
		if err := s.coreService.Logout(ctx.Request().Context(), cookie.Value); err != nil {
			return s.errorJSON(ctx, "logoutHandler", err)
		}
	}
	ctx.SetCookie(s.sessionCookie("", -1))
	return ctx.JSON(http.StatusOK, messageResponse{Message: "Logged out"})
}

func (s *APIService) userHandler(ctx echo.Context) error {
	sess, err := s.authenticate(ctx)
	if err != nil {
		return s.errorJSON(ctx, "userHandler", err)
	}

	profile, err := s.coreService.GetUser(ctx.Request().Context(), sess)
	if err != nil {
		return s.errorJSON(ctx, "userHandler", err)
	}
	return ctx.JSON(http.StatusOK, profile)
}

func (s *APIService) reportsHandler(ctx echo.Context) error {
	sess, err := s.authenticate(ctx)
	if err != nil {
		return s.errorJSON(ctx, "reportsHandler", err)
	}

	if uid := ctx.QueryParam("id"); uid != "" {
		report, err := s.coreService.GetReport(ctx.Request().Context(), sess, uid)
		if err != nil {
			return s.errorJSON(ctx, "reportsHandler", err)
		}
		return ctx.JSON(http.StatusOK, report)
	}

	reports, err := s.coreService.ListReports(ctx.Request().Context(), sess)
	if err != nil {
		return s.errorJSON(ctx, "reportsHandler", err)
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (s *APIService) uploadHandler(ctx echo.Context) error {
	sess, err := s.authenticate(ctx)
	if err != nil {
		return s.errorJSON(ctx, "uploadHandler", err)
	}

	upload, err := readUpload(ctx)
	if err != nil {
		return s.errorJSON(ctx, "uploadHandler", err)
	}

	result, err := s.coreService.UploadImage(ctx.Request().Context(), sess, *upload)
	if err != nil {
		return s.errorJSON(ctx, "uploadHandler", err)
	}

	slog.Info("uploadHandler: image processed", "uid", result.UID, "filename", upload.Filename)
	return ctx.JSON(http.StatusCreated, uploadResponse{
		Message:    "File uploaded successfully",
		UID:        result.UID,
		Prediction: result.Predictions,
	})
}

// readUpload extracts the single file of the multipart field "file"
func readUpload(ctx echo.Context) (*core.Upload, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: expected multipart form: %v", common.ErrValidation, err)
	}
	files := form.File[uploadFieldName]
	if len(files) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one %q field, got %d", common.ErrValidation, uploadFieldName, len(files))
	}
	file := files[0]

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("uploadHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", common.ErrValidation)
	}

	return &core.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Data:        data,
	}, nil
}

func (s *APIService) authenticate(ctx echo.Context) (*session.Session, error) {
	cookie, err := ctx.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, common.ErrNotAuthenticated
	}
	return s.coreService.Authenticate(ctx.Request().Context(), cookie.Value)
}

func (s *APIService) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}

// errorJSON logs the failure and answers with the status and public message of its sentinel
func (s *APIService) errorJSON(ctx echo.Context, handler string, err error) error {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error(handler+": request failed", "status", status, "error", err)
	} else {
		slog.Warn(handler+": request rejected", "status", status, "error", err)
	}
	return ctx.JSON(status, errorResponse{Error: message})
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{common.ErrNotAuthenticated, http.StatusUnauthorized},
	{common.ErrInvalidCredentials, http.StatusUnauthorized},
	{common.ErrInvalidSession, http.StatusBadRequest},
	{common.ErrValidation, http.StatusBadRequest},
	{common.ErrUserExists, http.StatusBadRequest},
	{common.ErrCodec, http.StatusBadRequest},
	{common.ErrUnsupportedType, http.StatusUnsupportedMediaType},
	{common.ErrNotFound, http.StatusNotFound},
	{common.ErrSubmission, http.StatusInternalServerError},
	{common.ErrPollTimeout, http.StatusInternalServerError},
	{common.ErrResponseFormat, http.StatusInternalServerError},
	{common.ErrInferenceFailed, http.StatusInternalServerError},
	{common.ErrStore, http.StatusInternalServerError},
}

func errorStatus(err error) (int, string) {
	for _, mapping := range errorStatuses {
		if errors.Is(err, mapping.err) {
			return mapping.status, mapping.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}
