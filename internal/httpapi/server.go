// Package httpapi is the thin controller in front of the services: routing,
// token auth and JSON shaping only. All authorization and business rules
// live in the service layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/philboiv1n/todolist/internal/config"
	"github.com/philboiv1n/todolist/internal/recur"
	"github.com/philboiv1n/todolist/internal/repository"
	"github.com/philboiv1n/todolist/internal/service"
)

// Server holds the API's dependencies.
type Server struct {
	cfg      config.Config
	users    *service.UserService
	tasks    *service.TaskService
	lists    *service.ListService
	attempts *repository.LoginAttemptRepository
}

func New(cfg config.Config, users *service.UserService, tasks *service.TaskService, lists *service.ListService, attempts *repository.LoginAttemptRepository) *Server {
	return &Server{cfg: cfg, users: users, tasks: tasks, lists: lists, attempts: attempts}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/lists", s.handleGetLists).Methods(http.MethodGet)
	api.HandleFunc("/lists", s.handleCreateList).Methods(http.MethodPost)
	api.HandleFunc("/lists/order", s.handleSetOrder).Methods(http.MethodPut)
	api.HandleFunc("/lists/{id:[0-9]+}", s.handleRenameList).Methods(http.MethodPatch)
	api.HandleFunc("/lists/{id:[0-9]+}", s.handleDeleteList).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{id:[0-9]+}/clear-completed", s.handleClearCompleted).Methods(http.MethodPost)
	api.HandleFunc("/lists/{id:[0-9]+}/access", s.handleSetAccess).Methods(http.MethodPut)
	api.HandleFunc("/lists/{id:[0-9]+}/access/{user:[0-9]+}", s.handleRemoveAccess).Methods(http.MethodDelete)
	api.HandleFunc("/lists/{id:[0-9]+}/expanded", s.handleSetExpanded).Methods(http.MethodPut)

	api.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id:[0-9]+}/toggle", s.handleToggleTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id:[0-9]+}", s.handleUpdateDueDate).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{id:[0-9]+}", s.handleDeleteTask).Methods(http.MethodDelete)

	api.HandleFunc("/change-token", s.handleChangeToken).Methods(http.MethodGet)
	api.HandleFunc("/password", s.handleChangePassword).Methods(http.MethodPost)

	api.HandleFunc("/admin/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/admin/users", s.handleCreateUser).Methods(http.MethodPost)
	api.HandleFunc("/admin/users/{id:[0-9]+}/toggle-admin", s.handleToggleAdmin).Methods(http.MethodPost)
	api.HandleFunc("/admin/users/{id:[0-9]+}/password", s.handleResetPassword).Methods(http.MethodPost)
	api.HandleFunc("/admin/users/{id:[0-9]+}", s.handleDeleteUser).Methods(http.MethodDelete)

	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	ip := clientIP(r)
	since := time.Now().Add(-s.cfg.LoginAttemptWindow)
	failures, err := s.attempts.CountRecentFailures(r.Context(), ip, since)
	if err != nil {
		log.Printf("count login failures: %v", err)
	}
	if failures >= int64(s.cfg.MaxLoginAttempts) {
		respondError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if recErr := s.attempts.Record(r.Context(), ip, false); recErr != nil {
			log.Printf("record login attempt: %v", recErr)
		}
		respondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err := s.attempts.Record(r.Context(), ip, true); err != nil {
		log.Printf("record login attempt: %v", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":    signed,
		"user_id":  user.ID,
		"username": user.Username,
		"is_admin": user.IsAdmin,
	})
}

// taskView is a task plus its derived recurrence label.
type taskView struct {
	ID           uint    `json:"id"`
	Title        string  `json:"title"`
	DueDate      *string `json:"due_date"`
	IsDone       bool    `json:"is_done"`
	RepeatRule   *string `json:"repeat_rule,omitempty"`
	RepeatLabel  string  `json:"repeat_label,omitempty"`
	RepeatSource *uint   `json:"repeat_source_id,omitempty"`
}

type listView struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	CanEdit    bool       `json:"can_edit"`
	IsPersonal bool       `json:"is_personal"`
	IsExpanded bool       `json:"is_expanded"`
	Tasks      []taskView `json:"tasks"`
}

func (s *Server) handleGetLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.tasks.ListForUser(r.Context(), actingUser(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	out := make([]listView, len(lists))
	for i, l := range lists {
		view := listView{
			ID:         l.ID,
			Name:       l.Name,
			CanEdit:    l.CanEdit,
			IsPersonal: l.IsPersonal,
			IsExpanded: l.IsExpanded,
			Tasks:      make([]taskView, len(l.Tasks)),
		}
		for j, t := range l.Tasks {
			tv := taskView{
				ID:           t.ID,
				Title:        t.Title,
				DueDate:      t.DueDate,
				IsDone:       t.IsDone,
				RepeatRule:   t.RepeatRule,
				RepeatSource: t.RepeatSourceID,
			}
			if t.RepeatRule != nil {
				tv.RepeatLabel = recur.Parse(*t.RepeatRule).Describe()
			}
			view.Tasks[j] = tv
		}
		out[i] = view
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListID  uint   `json:"list_id"`
		Title   string `json:"title"`
		DueDate string `json:"due_date"`
		Repeat  string `json:"repeat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	task, err := s.tasks.Create(r.Context(), actingUser(r), service.CreateTaskInput{
		ListID:       req.ListID,
		Title:        req.Title,
		DueDate:      req.DueDate,
		RepeatPreset: req.Repeat,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"task_id": task.ID,
		"list_id": task.ListID,
	})
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	listID, err := s.tasks.Toggle(r.Context(), actingUser(r), pathID(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uint{"list_id": listID})
}

func (s *Server) handleUpdateDueDate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DueDate string `json:"due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	listID, err := s.tasks.UpdateDueDate(r.Context(), actingUser(r), pathID(r, "id"), req.DueDate)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uint{"list_id": listID})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	listID, err := s.tasks.Delete(r.Context(), actingUser(r), pathID(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]uint{"list_id": listID})
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	list, err := s.lists.Create(r.Context(), actingUser(r), req.Name)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]uint{"list_id": list.ID})
}

func (s *Server) handleRenameList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := s.lists.Rename(r.Context(), actingUser(r), pathID(r, "id"), req.Name); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.lists.Delete(r.Context(), actingUser(r), pathID(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	if err := s.lists.ClearCompleted(r.Context(), actingUser(r), pathID(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleSetAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  uint `json:"user_id"`
		CanEdit bool `json:"can_edit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	err := s.lists.SetAccess(r.Context(), actingUser(r), pathID(r, "id"), req.UserID, req.CanEdit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleRemoveAccess(w http.ResponseWriter, r *http.Request) {
	err := s.lists.RemoveAccess(r.Context(), actingUser(r), pathID(r, "id"), pathID(r, "user"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleSetExpanded(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Expanded bool `json:"expanded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := s.lists.SetExpanded(r.Context(), actingUser(r), pathID(r, "id"), req.Expanded); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleSetOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListIDs []uint `json:"list_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := s.lists.SetOrder(r.Context(), actingUser(r), req.ListIDs); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleChangeToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.lists.ChangeToken(r.Context())
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"change_token": token})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	err := s.users.ChangePassword(r.Context(), actingUser(r), req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.users.GetDashboard(r.Context(), actingUser(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	user, err := s.users.Create(r.Context(), actingUser(r), req.Username, req.Password, req.IsAdmin)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]uint{"user_id": user.ID})
}

func (s *Server) handleToggleAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.users.ToggleAdmin(r.Context(), actingUser(r), pathID(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	err := s.users.ResetPassword(r.Context(), actingUser(r), pathID(r, "id"), req.NewPassword)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Delete(r.Context(), actingUser(r), pathID(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondOK(w)
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Forbidden and not-found share a response so that probing an id never
// reveals whether it exists.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConflict):
		respondError(w, http.StatusConflict, "store is busy, retry")
	case errors.Is(err, service.ErrUnsupported):
		respondError(w, http.StatusNotImplemented, "feature is disabled")
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, key string) uint {
	n, _ := strconv.ParseUint(mux.Vars(r)[key], 10, 32)
	return uint(n)
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func respondOK(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
