package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"kakioki/internal/domain"
	"kakioki/internal/metrics"
)

type ctxKey struct{}

// Server exposes a Backend over JSON HTTP.
type Server struct {
	backend *Backend
	log     *zap.Logger
	metrics *metrics.Metrics
	router  *mux.Router
}

// NewServer builds the route table. Callers may mount more handlers on
// Router before serving.
func NewServer(b *Backend, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{backend: b, log: log, metrics: metrics.OrNop(m), router: mux.NewRouter()}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("/thread", s.openThread).Methods(http.MethodPost)
	api.HandleFunc("/profile", s.publishProfile).Methods(http.MethodPost)
	api.HandleFunc("/friend/profile", s.friendProfile).Methods(http.MethodGet)
	api.HandleFunc("/chat/message", s.message).Methods(http.MethodGet)
	api.HandleFunc("/chat/send", s.send).Methods(http.MethodPost)
	api.HandleFunc("/chat/status", s.status).Methods(http.MethodPost)
	api.HandleFunc("/chat/block", s.control(b.Block)).Methods(http.MethodPost)
	api.HandleFunc("/chat/unblock", s.control(b.Unblock)).Methods(http.MethodPost)
	api.HandleFunc("/chat/remove", s.control(b.Remove)).Methods(http.MethodPost)
	api.HandleFunc("/chat/{threadId}", s.history).Methods(http.MethodGet)
	return s
}

// Router returns the underlying mux router.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
		if err != nil || id <= 0 {
			s.fail(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, domain.UserID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actor(r *http.Request) domain.UserID {
	id, _ := r.Context().Value(ctxKey{}).(domain.UserID)
	return id
}

func (s *Server) openThread(w http.ResponseWriter, r *http.Request) {
	var req threadRequest
	if !s.decode(w, r, &req) {
		return
	}
	t, err := s.backend.OpenThread(r.Context(), actor(r), req.PeerID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.reply(w, r, threadResponse{Success: true, Thread: t})
}

func (s *Server) publishProfile(w http.ResponseWriter, r *http.Request) {
	var req publishProfileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.PublicKey == "" {
		s.fail(w, r, http.StatusBadRequest, "Public key missing")
		return
	}
	p := domain.Profile{UserID: actor(r), Username: req.Username, PublicKey: req.PublicKey}
	s.backend.PutProfile(p)
	s.reply(w, r, profileResponse{Friend: profileEntry{ID: p.UserID, Username: p.Username, PublicKey: p.PublicKey}})
}

func (s *Server) friendProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("friendId"), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, r, http.StatusBadRequest, "Invalid friend id")
		return
	}
	p, err := s.backend.Profile(r.Context(), domain.UserID(id))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.reply(w, r, profileResponse{Friend: profileEntry{ID: p.UserID, Username: p.Username, PublicKey: p.PublicKey}})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	threadID := domain.ThreadID(mux.Vars(r)["threadId"])
	q := domain.HistoryQuery{}
	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("after"); v != "" {
		after, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, "Invalid cursor")
			return
		}
		q.After = &after
	}
	page, err := s.backend.History(r.Context(), actor(r), threadID, q)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.reply(w, r, historyResponse{Success: true, Thread: page.Thread, Messages: page.Messages})
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("threadId")
	clientMessageID := r.URL.Query().Get("clientMessageId")
	if threadID == "" || clientMessageID == "" {
		s.fail(w, r, http.StatusBadRequest, "Missing threadId or clientMessageId")
		return
	}
	rec, err := s.backend.Message(r.Context(), actor(r), domain.ThreadID(threadID), clientMessageID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.reply(w, r, messageResponse{Success: true, Message: rec})
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.backend.Send(r.Context(), actor(r), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.reply(w, r, sendResponse{Success: true, ThreadID: res.ThreadID, Message: res.Message})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	var req domain.StatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	updated, err := s.backend.UpdateStatus(r.Context(), actor(r), req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if updated == nil {
		updated = []domain.MessageRecord{}
	}
	s.reply(w, r, statusResponse{Success: true, Updated: updated})
}

type controlFunc func(context.Context, domain.UserID, domain.ControlRequest) (domain.ControlResult, error)

func (s *Server) control(fn controlFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.ControlRequest
		if !s.decode(w, r, &req) {
			return
		}
		res, err := fn(r.Context(), actor(r), req)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		s.reply(w, r, controlResponse{Success: true, ThreadID: res.ThreadID})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrBadRequest):
		code = http.StatusBadRequest
	case errors.Is(err, ErrForbidden), errors.Is(err, domain.ErrBlocked):
		code = http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	}
	if code == http.StatusInternalServerError {
		s.log.Error("relay request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	msg := err.Error()
	if errors.Is(err, domain.ErrBlocked) {
		msg = domain.UserMessage(err)
	}
	s.fail(w, r, code, msg)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, msg string) {
	s.write(w, r, code, errorResponse{Success: false, Error: msg})
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, v any) {
	s.write(w, r, http.StatusOK, v)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, code int, v any) {
	route := r.URL.Path
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			route = tpl
		}
	}
	s.metrics.RelayRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response failed", zap.Error(err))
	}
}
