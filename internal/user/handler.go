package user

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/response"
)

// Handler holds HTTP handlers for user-related endpoints.
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates a new user Handler.
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// NameResponse is the payload of the user lookup endpoint.
type NameResponse struct {
	FullName *string `json:"fullName"`
}

// GetName godoc
//
//	@Summary		Look up a user's display name
//	@Description	Returns the display name recorded for userId. Used to label uploaders.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		string	true	"User ID"
//	@Success		200		{object}	response.Envelope{data=NameResponse}
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/user/{userId} [get]
func (h *Handler) GetName(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		response.BadRequest(w, "userId is required")
		return
	}

	u, err := h.svc.GetByID(r.Context(), userID)
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "user not found")
			return
		}
		h.log.Error("get user", zap.String("user_id", userID), zap.Error(err))
		response.InternalError(w)
		return
	}

	response.OK(w, NameResponse{FullName: u.FullName})
}
