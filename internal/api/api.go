// Package api implements the control-plane HTTP surface: operator login,
// the /send dispatch endpoint, and a status websocket, mirroring the
// teacher's gin router/handler layer (internal/handlers, pkg/response)
// narrowed to this system's three endpoints.
package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alarm-gateway/internal/auth"
	"alarm-gateway/internal/gateway"
	"alarm-gateway/internal/middleware"
	domainerrors "alarm-gateway/pkg/errors"
	"alarm-gateway/pkg/response"
)

// Dispatcher is the subset of gateway.GatewaysManager the send handler
// needs; narrowed to an interface so handler tests can supply a fake.
type Dispatcher interface {
	Send(code string, utcTime time.Time, audio *gateway.AudioReference, isRealAlarm bool) error
}

// loginRequest is the operator login request body.
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// sendRequest is the POST /api/v1/send request body.
type sendRequest struct {
	Code        string `json:"code" binding:"required"`
	Time        string `json:"time" binding:"required"`
	IsRealAlarm bool   `json:"is_real_alarm"`
	AudioRef    *audioRefBody `json:"audio_ref"`
}

type audioRefBody struct {
	DataBase64 string `json:"data_base64" binding:"required"`
	MediaType  string `json:"media_type" binding:"required"`
}

// NewRouter builds the gin engine for the control plane. hub may be nil to
// disable the status websocket endpoint.
func NewRouter(dispatcher Dispatcher, authSvc *auth.Service, hub *StatusHub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/v1/auth/login", loginHandler(authSvc))

	if hub != nil {
		router.GET("/api/v1/status/ws", hub.HandleConnection)
	}

	guarded := router.Group("/api/v1")
	guarded.Use(middleware.RequireAuth(authSvc))
	{
		guarded.POST("/send", sendHandler(dispatcher))
	}

	return router
}

func loginHandler(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return
		}
		token, err := authSvc.Login(req.Username, req.Password)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		response.Success(c, gin.H{"token": token})
	}
}

func sendHandler(dispatcher Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return
		}
		eventTime, err := time.Parse(time.RFC3339, req.Time)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "time must be RFC3339")
			return
		}

		var audio *gateway.AudioReference
		if req.AudioRef != nil {
			data, err := base64.StdEncoding.DecodeString(req.AudioRef.DataBase64)
			if err != nil {
				response.Error(c, http.StatusBadRequest, "audio_ref.data_base64 is not valid base64")
				return
			}
			audio = &gateway.AudioReference{Data: data, MediaType: req.AudioRef.MediaType}
		}

		if err := dispatcher.Send(req.Code, eventTime.UTC(), audio, req.IsRealAlarm); err != nil {
			response.Error(c, statusFor(err), err.Error())
			return
		}
		response.Success(c, nil)
	}
}

// statusFor maps the send-pipeline error taxonomy onto an HTTP status, per
// the contract: NoMatch -> 404, everything else escaping Send -> 500.
func statusFor(err error) int {
	switch domainerrors.KindOf(err) {
	case domainerrors.KindNoMatch:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
