package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, created, err := h.Users.Login(r.Context(), req.Username, req.Avatar)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, loginResponse{User: newUserResponse(user), Created: created})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Get(r.Context(), domain.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	profiles, err := h.Users.Search(r.Context(), q.Get("q"), domain.UserID(q.Get("exclude")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, newProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.Users.Contacts(r.Context(), domain.UserID(chi.URLParam(r, "userId")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, newContactResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	contact, already, err := h.Users.AddContact(r.Context(), req.UserID, req.FriendID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addContactResponse{Contact: newProfileResponse(contact), AlreadyAdded: already})
}

func (h *Handler) removeContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Users.RemoveContact(r.Context(), req.UserID, req.FriendID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := service.DefaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, domain.InvalidArgument("limit must be a positive integer"))
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, r, domain.InvalidArgument("before must be an RFC 3339 timestamp"))
			return
		}
		before = &t
	}

	roomID := domain.RoomID(chi.URLParam(r, "roomId"))
	msgs, err := h.Chat.History(r.Context(), roomID, limit, before)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]domain.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, domain.NewMessagePayload(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.Chat.MarkRead(r.Context(), req.RoomID, req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Updated: n})
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.ByInviteCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inviteResponse{
		ID:         user.ID,
		Username:   user.Username,
		Avatar:     user.Avatar,
		InviteCode: user.InviteCode,
	})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.InvalidArgument("malformed request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	pub := domain.Public(err)
	if pub.Kind == domain.KindInternal {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, statusFor(pub.Kind), errorResponse{Error: pub.Reason, Code: pub.Kind})
}
