package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Tharindu1527/sample-doc-ai/internal/capture"
	"github.com/Tharindu1527/sample-doc-ai/internal/session"
)

// Conversation is the slice of the voice session the HTTP surface needs.
type Conversation interface {
	Snapshot() session.State
	ToggleRecording() error
	ClearMessages()
	ResetConnection()
	Connect() error
}

type Handlers struct {
	Session Conversation
}

func NewHandlers(s Conversation) Handlers {
	return Handlers{Session: s}
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/voice/health", h.health)
	e.GET("/voice/conversation", h.conversation)
	e.POST("/voice/conversation/reset", h.conversationReset)
	e.POST("/voice/toggle", h.toggle)
	e.POST("/voice/connection/reset", h.connectionReset)
	e.POST("/voice/connect", h.connect)
}

// conversationView adds the connection status State cannot carry as JSON.
type conversationView struct {
	session.State
	Connection string `json:"connection"`
}

func view(st session.State) conversationView {
	return conversationView{State: st, Connection: st.ConnectionStatus()}
}

func (h Handlers) health(c echo.Context) error {
	st := h.Session.Snapshot()
	status := "healthy"
	if st.Err != "" {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":     status,
		"connection": st.ConnectionStatus(),
	})
}

func (h Handlers) conversation(c echo.Context) error {
	return c.JSON(http.StatusOK, view(h.Session.Snapshot()))
}

func (h Handlers) conversationReset(c echo.Context) error {
	h.Session.ClearMessages()
	return c.JSON(http.StatusOK, map[string]string{"status": "conversation_reset"})
}

func (h Handlers) toggle(c echo.Context) error {
	err := h.Session.ToggleRecording()
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, view(h.Session.Snapshot()))
	case errors.Is(err, capture.ErrPermissionDenied), errors.Is(err, capture.ErrDeviceUnavailable):
		return c.JSON(http.StatusForbidden, map[string]string{"error": h.Session.Snapshot().CaptureDisabled})
	default:
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
}

func (h Handlers) connectionReset(c echo.Context) error {
	h.Session.ResetConnection()
	return c.JSON(http.StatusOK, map[string]string{"status": "connection_reset"})
}

func (h Handlers) connect(c echo.Context) error {
	if err := h.Session.Connect(); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, view(h.Session.Snapshot()))
}
