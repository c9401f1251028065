package student

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"student-records/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service              Service
	logger               *slog.Logger
	exposeInternalErrors bool
}

func NewHandler(service Service, logger *slog.Logger, exposeInternalErrors bool) *Handler {
	return &Handler{
		service:              service,
		logger:               logger,
		exposeInternalErrors: exposeInternalErrors,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Route("/students", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/", h.ListStudents)
		r.Put("/{id}", h.UpdateStudent)
		r.Delete("/{id}", h.DeleteStudent)
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "registering student", "username", req.Username)
	created, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithMessage(w, http.StatusCreated, "User registered successfully", map[string]interface{}{
		"user": created,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	token, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "student logged in", "username", req.Username)
	httputil.RespondWithMessage(w, http.StatusOK, "Login successful", map[string]interface{}{
		"token": token,
	})
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "fetching all students")

	students, err := h.service.ListStudents(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if len(students) == 0 {
		httputil.RespondNoContent(w)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, students)
}

func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)

	var req UpdateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "updating student", "student_id", id)
	updated, err := h.service.UpdateStudent(r.Context(), id, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)

	h.logger.InfoContext(r.Context(), "deleting student", "student_id", id)
	if err := h.service.DeleteStudent(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithMessage(w, http.StatusOK, "User deleted successfully", nil)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	switch {
	case errors.Is(err, ErrInvalidInput):
		h.logger.InfoContext(ctx, "invalid input", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUsernameTaken):
		h.logger.InfoContext(ctx, "username already taken")
		httputil.RespondWithError(w, http.StatusConflict, "User with this username already exists")
	case errors.Is(err, ErrInvalidCredentials):
		h.logger.InfoContext(ctx, "invalid credentials")
		httputil.RespondWithError(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, ErrStudentNotFound):
		h.logger.InfoContext(ctx, "student not found")
		httputil.RespondWithError(w, http.StatusNotFound, "User not found")
	default:
		h.logger.ErrorContext(ctx, "internal error", "error", err)
		message := "internal server error"
		if h.exposeInternalErrors {
			message = err.Error()
		}
		httputil.RespondWithError(w, http.StatusInternalServerError, message)
	}
}

var errEmptyBody = newValidationError("", "request body is empty")

// decodeJSON decodes the request body into dst, turning malformed input
// into a ValidationError.
func decodeJSON(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case errors.As(err, &typeErr):
		if msg, ok := fieldMessages[typeErr.Field]; ok {
			return newValidationError(typeErr.Field, msg)
		}
		return newValidationError(typeErr.Field, fmt.Sprintf("Invalid %s. It should be a %s.", typeErr.Field, typeErr.Type))
	case errors.As(err, &maxBytesErr):
		return newValidationError("", "request body too large")
	default:
		return newValidationError("", "invalid request body")
	}
}

// parseID returns 0 for ids that are not positive integers; the service
// reports those as not found.
func parseID(r *http.Request) int {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		return 0
	}
	return id
}
