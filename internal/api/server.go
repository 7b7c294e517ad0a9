// Package api exposes conversations over HTTP. It is the widget shell for
// browser hosts: it validates input at the boundary, forwards it to the
// conversation engine and streams engine events over WebSocket.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/agent/conversations"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// Server provides the chat HTTP handlers.
type Server struct {
	manager *conversations.Manager
	leads   model.LeadRepository
	cfg     model.HTTPConfig
}

// NewServer creates a Server. leads may be nil, which disables the lead listing.
func NewServer(manager *conversations.Manager, leads model.LeadRepository, cfg model.HTTPConfig) *Server {
	return &Server{manager: manager, leads: leads, cfg: cfg}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(logx.Logger()))
	r.Use(middleware.Recoverer)
	r.Use(CORS(s.cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusOK, map[string]any{"status": "ok", "conversations": s.manager.Len()})
	})

	r.Route("/api/chat/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.closeSession)
			r.Post("/messages", s.postMessage)
			r.Post("/actions", s.postAction)
			r.Post("/lead", s.submitLead)
			r.Delete("/lead", s.cancelLead)
			r.Get("/leads", s.listLeads)
			r.Get("/events", s.streamEvents)
		})
	})

	return r
}

// HTTPServer wraps Routes in an http.Server configured from cfg.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*conversation.Conversation, bool) {
	conv, err := s.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return nil, false
	}
	return conv, true
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	conv, err := s.manager.Create(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/chat/sessions/"+conv.ID())
	JSON(w, r, http.StatusCreated, conv.Snapshot())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.session(w, r)
	if !ok {
		return
	}
	JSON(w, r, http.StatusOK, conv.Snapshot())
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type messageRequest struct {
	Text string `json:"text"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	// Blank input never reaches the engine.
	if strings.TrimSpace(req.Text) == "" {
		Error(w, r, errx.ErrBlankUtterance)
		return
	}

	conv, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := conv.SubmitUtterance(req.Text); err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusAccepted, conv.Snapshot())
}

func (s *Server) postAction(w http.ResponseWriter, r *http.Request) {
	var action model.Action
	if err := decode(w, r, &action); err != nil {
		Error(w, r, err)
		return
	}
	conv, ok := s.session(w, r)
	if !ok {
		return
	}
	out, err := conv.InvokeAction(r.Context(), action)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, out)
}

func (s *Server) submitLead(w http.ResponseWriter, r *http.Request) {
	var lead model.LeadRecord
	if err := decode(w, r, &lead); err != nil {
		Error(w, r, err)
		return
	}
	// Required fields are checked here too so an invalid form never reaches the engine.
	lead = lead.Normalize()
	if err := lead.Validate(); err != nil {
		Error(w, r, err)
		return
	}

	conv, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := conv.SubmitForm(r.Context(), lead); err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, conv.Snapshot())
}

func (s *Server) cancelLead(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := conv.CancelForm(); err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, conv.Snapshot())
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	if s.leads == nil {
		JSON(w, r, http.StatusOK, []model.StoredLead{})
		return
	}
	leads, err := s.leads.ListLeads(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, leads)
}
