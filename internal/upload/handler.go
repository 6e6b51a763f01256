package upload

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/printforge/upload/internal/apperr"
	"github.com/printforge/upload/internal/metrics"
	"github.com/printforge/upload/internal/middleware"
	"github.com/printforge/upload/internal/response"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler holds HTTP handlers for the upload endpoints.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler creates a new upload Handler.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Mount registers the upload routes under /internal/upload. Init is
// guarded by requireTicket, everything else by requireInternal.
func (h *Handler) Mount(r chi.Router, requireTicket, requireInternal func(http.Handler) http.Handler) {
	r.Route("/internal/upload", func(r chi.Router) {
		r.With(requireTicket).Post("/init", h.Init)

		r.Group(func(r chi.Router) {
			r.Use(requireInternal)
			r.Post("/{id}/signed-urls", h.SignedURLs)
			r.Post("/{id}/confirm", h.Confirm)
			r.Get("/file/{id}/read-url", h.ReadURL)
			r.Post("/transfer", h.Transfer)
		})
	})
}

// InitRequest is the body of an init call.
type InitRequest struct {
	Files []FileSpec `json:"files"`
}

// InitResponse identifies the created upload.
type InitResponse struct {
	UploadID string `json:"upload_id"`
	Status   Status `json:"status"`
}

// SignedURLsResponse lists presigned PUT URLs.
type SignedURLsResponse struct {
	URLs []SignedURL `json:"urls"`
}

// TransferRequest names the session to move and its new owner.
type TransferRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// Init godoc
//
//	@Summary		Start an upload
//	@Description	Validates the upload ticket and file list, checks quota and records a pending upload.
//	@Tags			uploads
//	@Accept			json
//	@Produce		json
//	@Param			X-Upload-Ticket	header		string		true	"Signed upload ticket"
//	@Param			body			body		InitRequest	true	"Files to upload"
//	@Success		201				{object}	response.Envelope{data=InitResponse}
//	@Failure		400				{object}	response.Envelope
//	@Failure		401				{object}	response.Envelope
//	@Failure		429				{object}	response.Envelope
//	@Failure		503				{object}	response.Envelope
//	@Router			/internal/upload/init [post]
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	t, ok := middleware.TicketFrom(r.Context())
	if !ok {
		response.Unauthorized(w, "upload ticket required")
		return
	}
	scope := metrics.Scope(t.Identity().Anonymous())

	var req InitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		metrics.Request(r.Context(), scope, metrics.StatusRejected)
		response.BadRequest(w, "invalid request body")
		return
	}

	u, err := h.svc.Init(r.Context(), t, middleware.ClientIP(r), req.Files)
	if err != nil {
		h.fail(w, r, scope, err)
		return
	}

	metrics.Request(r.Context(), scope, metrics.StatusSuccess)
	response.Created(w, InitResponse{UploadID: u.ID, Status: u.Status})
}

// SignedURLs godoc
//
//	@Summary		Presign file uploads
//	@Description	Returns one presigned PUT URL per file of a pending upload.
//	@Tags			uploads
//	@Produce		json
//	@Param			X-Internal-Token	header		string	true	"Internal service token"
//	@Param			id					path		string	true	"Upload ID"
//	@Success		200					{object}	response.Envelope{data=SignedURLsResponse}
//	@Failure		401					{object}	response.Envelope
//	@Failure		404					{object}	response.Envelope
//	@Failure		503					{object}	response.Envelope
//	@Router			/internal/upload/{id}/signed-urls [post]
func (h *Handler) SignedURLs(w http.ResponseWriter, r *http.Request) {
	urls, err := h.svc.SignedURLs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, h.log, err)
		return
	}
	response.OK(w, SignedURLsResponse{URLs: urls})
}

// Confirm godoc
//
//	@Summary		Confirm an upload
//	@Description	Checks every file is stored, completes the upload and debits quota once.
//	@Tags			uploads
//	@Produce		json
//	@Param			X-Internal-Token	header		string	true	"Internal service token"
//	@Param			id					path		string	true	"Upload ID"
//	@Success		200					{object}	response.Envelope{data=Confirmation}
//	@Failure		401					{object}	response.Envelope
//	@Failure		404					{object}	response.Envelope
//	@Failure		409					{object}	response.Envelope
//	@Failure		503					{object}	response.Envelope
//	@Router			/internal/upload/{id}/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, h.log, err)
		return
	}

	// Only the confirm that completed the upload counts its bytes.
	metrics.Bytes(r.Context(), metrics.Scope(c.owner.Anonymous()), c.debited)
	response.OK(w, c)
}

// ReadURL godoc
//
//	@Summary		Presign a file download
//	@Tags			uploads
//	@Produce		json
//	@Param			X-Internal-Token	header		string	true	"Internal service token"
//	@Param			id					path		string	true	"File ID"
//	@Success		200					{object}	response.Envelope{data=ReadURL}
//	@Failure		401					{object}	response.Envelope
//	@Failure		404					{object}	response.Envelope
//	@Router			/internal/upload/file/{id}/read-url [get]
func (h *Handler) ReadURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.ReadURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, h.log, err)
		return
	}
	response.OK(w, u)
}

// Transfer godoc
//
//	@Summary		Transfer a session to a user
//	@Description	Moves every upload of an anonymous session, its objects and its quota to a user.
//	@Tags			uploads
//	@Accept			json
//	@Produce		json
//	@Param			X-Internal-Token	header		string			true	"Internal service token"
//	@Param			body				body		TransferRequest	true	"Session and user"
//	@Success		200					{object}	response.Envelope{data=TransferResult}
//	@Failure		400					{object}	response.Envelope
//	@Failure		401					{object}	response.Envelope
//	@Failure		409					{object}	response.Envelope
//	@Failure		503					{object}	response.Envelope
//	@Router			/internal/upload/transfer [post]
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	res, err := h.svc.Transfer(r.Context(), req.SessionID, req.UserID)
	if err != nil {
		response.FromError(w, r, h.log, err)
		return
	}
	response.OK(w, res)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, scope string, err error) {
	status := metrics.StatusError
	if e, ok := apperr.As(err); ok {
		switch e.Kind {
		case apperr.KindQuotaExceeded:
			metrics.RateLimitHit(r.Context(), e.Code)
			status = metrics.StatusRejected
		case apperr.KindValidation, apperr.KindAuth:
			status = metrics.StatusRejected
		}
	}
	metrics.Request(r.Context(), scope, status)
	response.FromError(w, r, h.log, err)
}
