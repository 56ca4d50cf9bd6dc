package handler

import (
	"blog_auth/internal/models"
	"blog_auth/internal/service"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
	refreshPath        = "/auth/refresh"

	ctxUserID    = "UserID"
	ctxSessionID = "SessionID"
	ctxRequestID = "RequestID"

	requestIDHeader = "X-Request-ID"
)

// CookieConfig controls the auth cookies. Max-age follows the token TTLs.
type CookieConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secure     bool
	SameSite   http.SameSite
	Domain     string
}

type Handler struct {
	serviceLayer   service.Service
	log            *slog.Logger
	cookies        CookieConfig
	requestTimeout time.Duration
}

type errorResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	models.Profile
	AccessToken string `json:"accessToken"`
}

type authResponse struct {
	Message  string       `json:"message"`
	Response userResponse `json:"response"`
}

type refreshResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

func NewHandler(srvc service.Service, lgr *slog.Logger, cookies CookieConfig, requestTimeout time.Duration) *Handler {
	return &Handler{
		serviceLayer:   srvc,
		log:            lgr,
		cookies:        cookies,
		requestTimeout: requestTimeout,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(h.log), Timeout(h.requestTimeout))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := router.Group("/auth")
	{
		auth.POST("/registration", h.Register)
		auth.POST("/login", h.Login)
		auth.GET("/refresh", h.RefreshTokens)
		auth.GET("/logout", h.Logout)

		auth.GET("/profile", AuthMiddleware(h.serviceLayer), h.GetProfile)
	}

	return router
}

type registerRequest struct {
	Name           string `json:"name" binding:"required,max=255"`
	Email          string `json:"email" binding:"required,email,max=255"`
	Password       string `json:"password" binding:"required,min=6,max=72"`
	ProfilePicture string `json:"profilePicture" binding:"omitempty,url,max=2048"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /auth/registration
func (h *Handler) Register(c *gin.Context) {
	const op = "handler.Register"

	log := h.log.With(slog.String("op", op), slog.String("request_id", c.GetString(ctxRequestID)))

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("invalid registration request", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request")

		return
	}

	res, err := h.serviceLayer.Register(c.Request.Context(), service.RegisterInput{
		Name:           strings.TrimSpace(req.Name),
		Email:          req.Email,
		Password:       req.Password,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		h.serviceError(c, log, err)

		return
	}

	log.Info("user registered", slog.Any("user_id", res.User.ID))

	h.setAuthCookies(c, res.AccessToken, res.RefreshToken)
	c.JSON(http.StatusCreated, authResponse{
		Message:  "Account created successfully",
		Response: userResponse{Profile: res.User, AccessToken: res.AccessToken},
	})
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	const op = "handler.Login"

	log := h.log.With(slog.String("op", op), slog.String("request_id", c.GetString(ctxRequestID)))

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug("invalid login request", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, "invalid request")

		return
	}

	res, err := h.serviceLayer.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.serviceError(c, log, err)

		return
	}

	h.setAuthCookies(c, res.AccessToken, res.RefreshToken)
	c.JSON(http.StatusOK, authResponse{
		Message:  "Login successful",
		Response: userResponse{Profile: res.User, AccessToken: res.AccessToken},
	})
}

// GET /auth/refresh
func (h *Handler) RefreshTokens(c *gin.Context) {
	const op = "handler.RefreshTokens"

	log := h.log.With(slog.String("op", op), slog.String("request_id", c.GetString(ctxRequestID)))

	refreshToken, err := c.Cookie(refreshTokenCookie)
	if err != nil || refreshToken == "" {
		newErrorResponse(c, http.StatusUnauthorized, "Missing refresh token, please log in again")

		return
	}

	res, err := h.serviceLayer.RefreshAccessToken(c.Request.Context(), refreshToken)
	if err != nil {
		h.serviceError(c, log, err)

		return
	}

	h.setCookie(c, accessTokenCookie, res.AccessToken, h.cookies.AccessTTL, "/")
	if res.Rotated() {
		h.setCookie(c, refreshTokenCookie, res.NewRefreshToken, h.cookies.RefreshTTL, refreshPath)
	}

	c.JSON(http.StatusOK, refreshResponse{
		Message:     "Access token refreshed",
		AccessToken: res.AccessToken,
	})
}

// GET /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	h.serviceLayer.Logout(c.Request.Context(), accessTokenFrom(c))

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, messageResponse{Message: "Logout successful"})
}

// GET /auth/profile
func (h *Handler) GetProfile(c *gin.Context) {
	const op = "handler.GetProfile"

	log := h.log.With(slog.String("op", op), slog.String("request_id", c.GetString(ctxRequestID)))

	profile, err := h.serviceLayer.Profile(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.serviceError(c, log, err)

		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *Handler) serviceError(c *gin.Context, log *slog.Logger, err error) {
	var authErr *service.AuthError

	switch {
	case errors.As(err, &authErr) && errors.Is(err, service.ErrConflict):
		newErrorResponse(c, http.StatusConflict, authErr.Message)
	case errors.As(err, &authErr) && errors.Is(err, service.ErrUnauthorized):
		newErrorResponse(c, http.StatusUnauthorized, authErr.Message)
	case errors.As(err, &authErr) && errors.Is(err, service.ErrInvalidInput):
		newErrorResponse(c, http.StatusBadRequest, authErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("request timed out", slog.Any("error", err))

		newErrorResponse(c, http.StatusGatewayTimeout, "request timed out")
	default:
		log.Error("internal error", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) setCookie(c *gin.Context, name, value string, ttl time.Duration, path string) {
	c.SetSameSite(h.cookies.SameSite)
	c.SetCookie(name, value, int(ttl.Seconds()), path, h.cookies.Domain, h.cookies.Secure, true)
}

func (h *Handler) setAuthCookies(c *gin.Context, accessToken, refreshToken string) {
	h.setCookie(c, accessTokenCookie, accessToken, h.cookies.AccessTTL, "/")
	h.setCookie(c, refreshTokenCookie, refreshToken, h.cookies.RefreshTTL, refreshPath)
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(h.cookies.SameSite)
	c.SetCookie(accessTokenCookie, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(refreshTokenCookie, "", -1, refreshPath, h.cookies.Domain, h.cookies.Secure, true)
}

// accessTokenFrom prefers the accessToken cookie and falls back to a
// bearer Authorization header.
func accessTokenFrom(c *gin.Context) string {
	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}

	return ""
}

func AuthMiddleware(srvc service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessTokenFrom(c)
		if token == "" {
			newErrorResponse(c, http.StatusUnauthorized, "missing access token")

			return
		}

		payload, err := srvc.Authenticate(token)
		if err != nil {
			newErrorResponse(c, http.StatusUnauthorized, err.Error())

			return
		}

		c.Set(ctxUserID, payload.UserID)
		c.Set(ctxSessionID, payload.SessionID)

		c.Next()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)

		c.Next()
	}
}

func RequestLogger(lgr *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		lgr.Info("http.request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", c.GetString(ctxRequestID)),
		)
	}
}

// Timeout bounds the request context. A zero timeout leaves it unbounded.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()

			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
