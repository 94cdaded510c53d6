package http

import (
	"net/http"
	"strconv"
	"strings"

	"messenger/internal/domain"
	"messenger/internal/dto"
	"messenger/internal/gate"
	"messenger/internal/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var (
	errInvalidConversationID = domain.NewError(domain.KindValidation, "Invalid conversation id")
	errInvalidRecipientID    = domain.NewError(domain.KindValidation, "Invalid recipient id")
	errInvalidPaging         = domain.NewError(domain.KindValidation, "limit and offset must be non-negative integers")
)

type handler struct {
	svc Services
}

// currentUser is only reached behind the gate middleware.
func currentUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	u, ok := gate.UserFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, domain.ErrInvalidSession)
	}
	return u, ok
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Identity.Register(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Identity.Login(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Identity.Logout(r.Context(), u.ID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Logged out"})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Identity.Me(r.Context(), u.ID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.UpdateProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Identity.UpdateProfile(r.Context(), u.ID, req)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.UpdatePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.svc.Identity.UpdatePassword(r.Context(), u.ID, req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Password updated"})
}

func (h *handler) disableAccount(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.svc.Identity.DisableAccount(r.Context(), u.ID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: "Account disabled"})
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Identity.ListUsers(r.Context(), limit, offset)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	msg, err := h.svc.Identity.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: msg})
}

func (h *handler) requestEnableAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	msg, err := h.svc.Activation.RequestEnableAccount(r.Context(), req.Email)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.MessageResponse{Success: true, Message: msg})
}

func (h *handler) enableAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.activate(w, r, req.Token)
}

// activateFromLink serves the link mailed by requestEnableAccount.
func (h *handler) activateFromLink(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, r.URL.Query().Get("token"))
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request, token string) {
	res, err := h.svc.Activation.EnableAccountWithToken(r.Context(), strings.TrimSpace(token))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) syncUser(w http.ResponseWriter, r *http.Request) {
	var req dto.SyncUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Sync.SyncUser(r.Context(), req.UIDOrEmail, req.AdminKey)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	reports, err := h.svc.Sync.RunSweep(r.Context(), req.AdminKey)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reports)
}

func (h *handler) startConversation(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req dto.StartConversationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	recipient, err := uuid.Parse(strings.TrimSpace(req.RecipientID))
	if err != nil {
		httpx.WriteError(w, r, errInvalidRecipientID)
		return
	}
	res, err := h.svc.Chat.StartConversation(r.Context(), u.ID, recipient)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) myConversations(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Chat.MyConversations(r.Context(), u.ID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, errInvalidConversationID)
		return
	}
	var req dto.SendMessageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Chat.SendMessage(r.Context(), convID, u.ID, req.Content)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, errInvalidConversationID)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Chat.History(r.Context(), convID, u.ID, limit)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errInvalidPaging
	}
	return n, nil
}
