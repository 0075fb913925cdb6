// Package api is the read-mostly admin facade consumed by the
// operator dashboard: group and window listings, summary lookup, and
// activation link generation.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log15 "github.com/inconshreveable/log15/v3"

	"DailyPulse/activation"
	"DailyPulse/db"
)

type Handler struct {
	store db.Store
	act   *activation.Manager
	log   log15.Logger

	defaultHour   int
	defaultMinute int
	defaultTZ     string
}

func NewHandler(store db.Store, act *activation.Manager, log log15.Logger, defaultHour, defaultMinute int, defaultTZ string) *Handler {
	return &Handler{
		store:         store,
		act:           act,
		log:           log,
		defaultHour:   defaultHour,
		defaultMinute: defaultMinute,
		defaultTZ:     defaultTZ,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		h.fail(w, "list groups", err)
		return
	}
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupView(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.AdminChatID == 0 {
		writeError(w, http.StatusBadRequest, "name and admin_chat_id are required")
		return
	}

	group := db.Group{
		Name:          req.Name,
		Description:   req.Description,
		AdminChatID:   req.AdminChatID,
		State:         db.GroupPending,
		CollectHour:   h.defaultHour,
		CollectMinute: h.defaultMinute,
		Timezone:      h.defaultTZ,
	}
	if req.CollectHour != nil {
		group.CollectHour = *req.CollectHour
	}
	if req.CollectMinute != nil {
		group.CollectMinute = *req.CollectMinute
	}
	if req.Timezone != "" {
		group.Timezone = req.Timezone
	}

	if group.CollectHour < 0 || group.CollectHour > 23 || group.CollectMinute < 0 || group.CollectMinute > 59 {
		writeError(w, http.StatusBadRequest, "collect time out of range")
		return
	}
	if _, err := time.LoadLocation(group.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "unknown timezone")
		return
	}

	if err := h.store.CreateGroup(r.Context(), &group); err != nil {
		h.fail(w, "create group", err)
		return
	}
	h.log.Info("group created", "group", group.ID, "name", group.Name)
	writeJSON(w, http.StatusCreated, toGroupView(group))
}

func (h *Handler) IssueActivationLink(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	token, err := h.act.IssueToken(r.Context(), groupID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "group not found")
		return
	case errors.Is(err, activation.ErrAlreadyActive):
		writeError(w, http.StatusConflict, "group is already active")
		return
	case err != nil:
		h.fail(w, "issue token", err)
		return
	}

	writeJSON(w, http.StatusCreated, activationLinkView{
		GroupID:   groupID,
		Link:      h.act.Link(token),
		ExpiresAt: token.ExpiresAt,
	})
}

func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	if _, err := h.store.GroupByID(r.Context(), groupID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		h.fail(w, "load group", err)
		return
	}

	windows, err := h.store.ListWindows(r.Context(), groupID)
	if err != nil {
		h.fail(w, "list windows", err)
		return
	}
	out := make([]windowView, 0, len(windows))
	for _, win := range windows {
		out = append(out, toWindowView(win))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	date := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	window, err := h.store.WindowByKey(r.Context(), db.WindowKey{GroupID: groupID, Date: date})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "window not found")
			return
		}
		h.fail(w, "load window", err)
		return
	}

	view := summaryView{Window: toWindowView(*window)}
	summary, err := h.store.SummaryForWindow(r.Context(), window.ID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		// Window exists but summarization has not finished yet.
	case err != nil:
		h.fail(w, "load summary", err)
		return
	default:
		view.Status = string(summary.Status)
		view.Content = summary.Content
		view.Attempts = summary.Attempts
		view.GeneratedAt = &summary.GeneratedAt
	}
	writeJSON(w, http.StatusOK, view)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.log.Error("admin api error", "op", op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
