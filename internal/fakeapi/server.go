package fakeapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/rpc"
	"github.com/kazz187/trackline/pkg/cerr"
	"github.com/kazz187/trackline/pkg/clog"
)

// Server exposes a State over the same connect procedures and push endpoint
// the client talks to.
type Server struct {
	state *State

	mu     sync.RWMutex
	tokens map[string]struct{}
	server *http.Server
	live   atomic.Int32
}

func NewServer(state *State, tokens ...string) *Server {
	s := &Server{state: state, tokens: make(map[string]struct{})}
	for _, t := range tokens {
		s.tokens[t] = struct{}{}
	}
	return s
}

func (s *Server) State() *State {
	return s.state
}

// AddToken authorizes token.
func (s *Server) AddToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = struct{}{}
}

// RevokeToken drops token; live push connections are not closed.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *Server) authorized(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[token]
	return ok
}

// Handler returns the full HTTP handler, h2c and CORS included.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	healthPath, healthHandler := grpchealth.NewHandler(grpchealth.NewStaticChecker(
		rpc.IssueServiceName, rpc.SprintServiceName, rpc.NotificationServiceName,
	))
	r.Handle(healthPath+"*", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(clog.SlogChiMiddleware(), s.authMiddleware)
		r.Get(rpc.PushPath, s.servePush)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		for path, h := range s.handlers() {
			r.Handle(path, h)
		}
	})

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(r), &http2.Server{})
}

// ListenAndServe serves on addr until Shutdown. ctx is the base context of
// every request, so cancelling it also ends push connections.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	srv := s.server
	s.mu.Unlock()
	slog.Info("starting fake api", "addr", addr)
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(rpc.BearerToken(r)) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlers() map[string]http.Handler {
	opts := rpc.HandlerOptions()
	st := s.state
	return map[string]http.Handler{
		rpc.IssueServiceMoveIssueProcedure: connect.NewUnaryHandler(rpc.IssueServiceMoveIssueProcedure,
			unary(st, rpc.IssueServiceMoveIssueProcedure, func(req *issue.MoveRequest) (*rpc.MoveIssueResponse, error) {
				i, err := st.MoveIssue(*req)
				if err != nil {
					return nil, err
				}
				return &rpc.MoveIssueResponse{Issue: &i}, nil
			}), opts...),
		rpc.IssueServiceListIssuesProcedure: connect.NewUnaryHandler(rpc.IssueServiceListIssuesProcedure,
			unary(st, rpc.IssueServiceListIssuesProcedure, func(req *issue.ListFilter) (*rpc.ListIssuesResponse, error) {
				items, total := st.ListIssues(*req)
				return &rpc.ListIssuesResponse{Items: items, Total: total}, nil
			}), opts...),
		rpc.SprintServiceListSprintsProcedure: connect.NewUnaryHandler(rpc.SprintServiceListSprintsProcedure,
			unary(st, rpc.SprintServiceListSprintsProcedure, func(req *rpc.ListSprintsRequest) (*rpc.ListSprintsResponse, error) {
				return &rpc.ListSprintsResponse{Items: st.ListSprints(req.ProjectID)}, nil
			}), opts...),
		rpc.SprintServiceStartSprintProcedure: connect.NewUnaryHandler(rpc.SprintServiceStartSprintProcedure,
			unary(st, rpc.SprintServiceStartSprintProcedure, func(req *rpc.SprintRequest) (*rpc.SprintResponse, error) {
				sp, err := st.StartSprint(req.SprintID)
				if err != nil {
					return nil, err
				}
				return &rpc.SprintResponse{Sprint: &sp}, nil
			}), opts...),
		rpc.SprintServiceCompleteSprintProcedure: connect.NewUnaryHandler(rpc.SprintServiceCompleteSprintProcedure,
			unary(st, rpc.SprintServiceCompleteSprintProcedure, func(req *rpc.SprintRequest) (*rpc.SprintResponse, error) {
				sp, err := st.CompleteSprint(req.SprintID)
				if err != nil {
					return nil, err
				}
				return &rpc.SprintResponse{Sprint: &sp}, nil
			}), opts...),
		rpc.NotificationServiceListNotificationsProcedure: connect.NewUnaryHandler(rpc.NotificationServiceListNotificationsProcedure,
			unary(st, rpc.NotificationServiceListNotificationsProcedure, func(req *rpc.ListNotificationsRequest) (*rpc.ListNotificationsResponse, error) {
				items, total := st.ListNotifications(req.Limit, req.Offset)
				return &rpc.ListNotificationsResponse{Items: items, Total: total}, nil
			}), opts...),
		rpc.NotificationServiceGetUnreadCountProcedure: connect.NewUnaryHandler(rpc.NotificationServiceGetUnreadCountProcedure,
			unary(st, rpc.NotificationServiceGetUnreadCountProcedure, func(*rpc.Empty) (*rpc.GetUnreadCountResponse, error) {
				return &rpc.GetUnreadCountResponse{Count: st.UnreadCount()}, nil
			}), opts...),
		rpc.NotificationServiceMarkReadProcedure: connect.NewUnaryHandler(rpc.NotificationServiceMarkReadProcedure,
			unary(st, rpc.NotificationServiceMarkReadProcedure, func(req *rpc.MarkReadRequest) (*rpc.Empty, error) {
				if err := st.MarkRead(req.NotificationID); err != nil {
					return nil, err
				}
				return &rpc.Empty{}, nil
			}), opts...),
		rpc.NotificationServiceMarkAllReadProcedure: connect.NewUnaryHandler(rpc.NotificationServiceMarkAllReadProcedure,
			unary(st, rpc.NotificationServiceMarkAllReadProcedure, func(*rpc.Empty) (*rpc.MarkAllReadResponse, error) {
				return &rpc.MarkAllReadResponse{Updated: st.MarkAllRead()}, nil
			}), opts...),
	}
}

// unary adapts a plain function to a connect handler, counting the call and
// applying any injected failure first.
func unary[Req, Res any](st *State, procedure string, fn func(*Req) (*Res, error)) func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error) {
	return func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		if err := st.enter(procedure); err != nil {
			return nil, err
		}
		res, err := fn(req.Msg)
		if err != nil {
			if reason := cerr.Reason(err); reason != "" {
				clog.AddAttribute(ctx, "reason", reason)
			}
			return nil, err
		}
		return connect.NewResponse(res), nil
	}
}
