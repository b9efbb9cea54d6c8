package users

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/users-service/internal/platform/httpx"
	"github.com/odyssey-erp/users-service/internal/shared"
)

// Handler exposes the users JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Put("/", h.updateUser)
	r.Delete("/", h.deleteUser)
	r.Get("/{id}", h.getUser)
	r.Delete("/{id}", h.deleteUser)
	r.Get("/id/{id}", h.getUser)
	r.Get("/username/{username}", h.getUserByUsername)
}

type userBody struct {
	ID       *string `json:"id"`
	Username *string `json:"username"`
	Name     *string `json:"name"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	params := ListParams{Limit: DefaultLimit}
	var err error
	if params.ID, err = parseID(httpx.QueryString(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	params.Username = httpx.QueryString(r, "username")
	if params.Limit, err = queryWindow(r, "limit", params.Limit, limitExplanation); err != nil {
		h.fail(w, r, err)
		return
	}
	if params.Offset, err = queryWindow(r, "offset", params.Offset, offsetExplanation); err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, page)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	raw, err := pathParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := parseID(&raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if id == nil {
		h.fail(w, r, shared.InvalidField("id", "not none"))
		return
	}
	user, err := h.service.Get(r.Context(), *id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, user)
}

func (h *Handler) getUserByUsername(w http.ResponseWriter, r *http.Request) {
	username, err := pathParam(r, "username")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.service.GetByUsername(r.Context(), username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.service.Create(r.Context(), CreateRequest{Username: body.Username, Name: body.Name})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Created(w, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	body, err := h.decodeBody(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := parseID(body.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.service.Update(r.Context(), UpdateRequest{ID: id, Username: body.Username, Name: body.Name})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	raw, err := pathParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var rawID *string
	if raw != "" {
		rawID = &raw
	} else {
		body, err := h.decodeBody(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		rawID = body.ID
	}
	id, err := parseID(rawID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.service.Delete(r.Context(), DeleteRequest{ID: id})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, DeletedUser{Deleted: true, User: user})
}

// decodeBody reads the JSON body, falling back to query parameters when the
// request has no body.
func (h *Handler) decodeBody(r *http.Request) (userBody, error) {
	var body userBody
	err := httpx.DecodeJSON(r, &body)
	switch {
	case err == nil:
		return body, nil
	case errors.Is(err, httpx.ErrEmptyBody):
		return userBody{
			ID:       httpx.QueryString(r, "id"),
			Username: httpx.QueryString(r, "username"),
			Name:     httpx.QueryString(r, "name"),
		}, nil
	default:
		return userBody{}, shared.Internal(fmt.Errorf("decode body: %w", err))
	}
}

// queryWindow reads an optional paging parameter. Integers too large for int
// are out of the window, so they fail validation like any other bad bound.
func queryWindow(r *http.Request, key string, fallback int, explanation string) (int, error) {
	n, err := httpx.QueryInt(r, key)
	switch {
	case errors.Is(err, strconv.ErrRange):
		return 0, shared.InvalidField(key, explanation)
	case err != nil:
		return 0, shared.Internal(fmt.Errorf("query %s: %w", key, err))
	case n == nil:
		return fallback, nil
	}
	return *n, nil
}

// pathParam returns the decoded route parameter. chi matches against the raw
// path when the request escaped a reserved character such as %2F.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return "", shared.InvalidField(key, "a valid path segment")
	}
	return decoded, nil
}

// parseID returns nil for an absent id so the validator reports it as required.
func parseID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, shared.InvalidField("id", "a valid uuid")
	}
	return &id, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr := shared.AsError(err)
	if appErr.Status() >= http.StatusInternalServerError {
		h.logger.Error("users request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, appErr)
}
