// Package webhook serves the carrier's HTTP callbacks: inbound SMS posts
// and the fallback invoked when the primary handler fails.
package webhook

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tutorbookapp/relay/internal/relay"
)

// Processor handles one inbound reply. Satisfied by *relay.Router.
type Processor interface {
	Process(ctx context.Context, in relay.InboundSMS) (*relay.Result, error)
}

// Alerter receives operator alerts for webhook failures. Optional.
type Alerter interface {
	Error(ctx context.Context, title, body string)
}

// Server answers the carrier webhooks with TwiML.
type Server struct {
	processor     Processor
	gate          relay.PromptGate
	alerter       Alerter
	operatorPhone string
	cookieName    string
	sessionTTL    time.Duration
	port          int
	out           io.Writer
}

// ServerOpts holds parameters for creating a Server.
type ServerOpts struct {
	Processor     Processor
	Gate          relay.PromptGate
	Alerter       Alerter // optional
	OperatorPhone string  // appears in the canned fallback notice
	CookieName    string  // session cookie name; defaults to "relay_sid"
	SessionTTL    time.Duration // session cookie lifetime; defaults to 30 minutes
	Port          int     // defaults to 8080
	Out           io.Writer // defaults to os.Stdout
}

// NewServer creates a Server.
func NewServer(opts ServerOpts) (*Server, error) {
	if opts.Processor == nil {
		return nil, fmt.Errorf("webhook: processor is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("webhook: prompt gate is required")
	}
	if opts.OperatorPhone == "" {
		return nil, fmt.Errorf("webhook: operator phone is required")
	}
	s := &Server{
		processor:     opts.Processor,
		gate:          opts.Gate,
		alerter:       opts.Alerter,
		operatorPhone: opts.OperatorPhone,
		cookieName:    opts.CookieName,
		sessionTTL:    opts.SessionTTL,
		port:          opts.Port,
		out:           opts.Out,
	}
	if s.cookieName == "" {
		s.cookieName = "relay_sid"
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 30 * time.Minute
	}
	if s.port <= 0 {
		s.port = 8080
	}
	if s.out == nil {
		s.out = os.Stdout
	}
	return s, nil
}

// routes builds the Gin engine serving the webhook endpoints.
func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/sms", s.handleSMS)
	router.POST("/sms/fallback", s.handleFallback)
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

// Start launches the webhook HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	fmt.Fprintf(s.out, "webhook: listening on :%d\n", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// handleSMS answers the carrier's inbound-message webhook. The reply body,
// when any, is the auto-reply prompt the routing decision produced; it is
// suppressed after the first prompt of a session so two bots texting each
// other cannot loop.
func (s *Server) handleSMS(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")
	if from == "" || body == "" {
		c.String(http.StatusBadRequest, "From and Body are required")
		return
	}

	sid := s.sessionID(c)
	res, err := s.processor.Process(c.Request.Context(), relay.InboundSMS{
		From:      from,
		Body:      body,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("webhook: process inbound from %s: %v", from, err)
		if s.alerter != nil {
			s.alerter.Error(c.Request.Context(), "Inbound SMS routing failed",
				fmt.Sprintf("from %s: %v", from, err))
		}
		// A non-2xx response makes the carrier invoke the fallback URL,
		// which delivers the canned notice.
		c.Status(http.StatusInternalServerError)
		return
	}

	reply := ""
	if res.Decision.Prompt != "" {
		allowed, err := s.gate.Allow(c.Request.Context(), sid)
		if err != nil {
			// Fail closed: better to drop a prompt than risk a loop.
			log.Printf("webhook: prompt gate: %v", err)
		} else if allowed {
			reply = res.Decision.Prompt
		} else {
			fmt.Fprintf(s.out, "webhook: prompt suppressed for session %s\n", sid)
		}
	}
	s.writeTwiML(c, reply)
}

// handleFallback answers the carrier's error webhook, invoked when the
// primary handler failed. It always succeeds: the responder gets the
// canned notice and the operator gets an alert.
func (s *Server) handleFallback(c *gin.Context) {
	from := c.PostForm("From")
	errorURL := c.PostForm("ErrorUrl")
	if s.alerter != nil {
		s.alerter.Error(c.Request.Context(), "SMS webhook fallback invoked",
			fmt.Sprintf("from %s (failed url %s)", from, errorURL))
	}
	s.writeTwiML(c, relay.ErrorNotice(s.operatorPhone))
}

// sessionID returns the request's session id, issuing a cookie when the
// request carries none.
func (s *Server) sessionID(c *gin.Context) string {
	if sid, err := c.Cookie(s.cookieName); err == nil && sid != "" {
		return sid
	}
	sid := uuid.NewString()
	c.SetCookie(s.cookieName, sid, int(s.sessionTTL.Seconds()), "/", "", false, true)
	return sid
}
