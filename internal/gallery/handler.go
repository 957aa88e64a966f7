package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/auth"
	"github.com/TimeFreeze025/it315-project/internal/response"
)

// unknownUploader labels images whose uploader name cannot be resolved.
const unknownUploader = "Unknown"

const multipartMemory = 8 << 20

// NameLookup resolves a user id to a display name.
type NameLookup interface {
	FullName(ctx context.Context, userID string) (string, error)
}

// Handler holds HTTP handlers for image endpoints.
type Handler struct {
	svc       *Service
	names     NameLookup
	log       *zap.Logger
	maxUpload int64
}

// NewHandler creates a new image Handler. maxUpload caps the request body of uploads.
func NewHandler(svc *Service, names NameLookup, log *zap.Logger, maxUpload int64) *Handler {
	return &Handler{svc: svc, names: names, log: log, maxUpload: maxUpload}
}

// Routes mounts the image endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Upload)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/detail", h.GetDetail)
	r.Patch("/{id}", h.Rename)
	r.Delete("/{id}", h.Delete)
}

// RenameRequest is the body of PATCH /images/{id}.
type RenameRequest struct {
	ImageName string `json:"imageName" example:"Sunset over the bay"`
}

// Detail is an image together with its uploader's display name.
type Detail struct {
	Image
	UploaderName string `json:"uploaderName"`
}

// DeleteResult is returned by a successful delete.
type DeleteResult struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// List godoc
//
//	@Summary		List my images
//	@Description	Returns every image owned by the caller, newest first.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]Image}
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/v1/images [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	images, err := h.svc.List(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, images)
}

// Get godoc
//
//	@Summary		Get an image
//	@Description	Returns the image if it exists and belongs to the caller.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Image ID"
//	@Success		200	{object}	response.Envelope{data=Image}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/v1/images/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	img, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.OK(w, img)
}

// GetDetail godoc
//
//	@Summary		Get an image with its uploader
//	@Description	Like Get, plus the uploader's display name ("Unknown" when it cannot be resolved).
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Image ID"
//	@Success		200	{object}	response.Envelope{data=Detail}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/v1/images/{id}/detail [get]
func (h *Handler) GetDetail(w http.ResponseWriter, r *http.Request) {
	img, ok := h.lookup(w, r)
	if !ok {
		return
	}

	uploader := unknownUploader
	if name, err := h.names.FullName(r.Context(), img.UserID); err == nil && name != "" {
		uploader = name
	} else if err != nil {
		h.log.Debug("resolve uploader name", zap.String("user_id", img.UserID), zap.Error(err))
	}
	response.OK(w, Detail{Image: *img, UploaderName: uploader})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*Image, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	img, err := h.svc.Get(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if img == nil {
		response.NotFound(w, ErrNotFound.Error())
		return nil, false
	}
	return img, true
}

// Upload godoc
//
//	@Summary		Upload images
//	@Description	Stores one or more image files under a display name. With imageId, the single file replaces that image's stored file.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file		formData	file	true	"Image file (repeatable)"
//	@Param			imageName	formData	string	true	"Display name, 5 to 50 characters"
//	@Param			imageId		formData	int		false	"Image to replace"
//	@Success		201			{object}	response.Envelope{data=[]Image}
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		403			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		413			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/v1/images [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	if caller.IsZero() {
		h.writeError(w, r, ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(w, "upload exceeds the size limit")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := UploadRequest{ImageName: r.FormValue("imageName")}
	if raw := r.FormValue("imageId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.BadRequest(w, "imageId must be a positive integer")
			return
		}
		req.TargetID = &id
	}

	files, closeAll, err := openFiles(r.MultipartForm.File["file"])
	defer closeAll()
	if err != nil {
		h.log.Error("open uploaded file", zap.Error(err))
		response.BadRequest(w, "could not read uploaded file")
		return
	}
	req.Files = files

	images, err := h.svc.Upload(r.Context(), caller, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, images)
}

// Rename godoc
//
//	@Summary		Rename an image
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		int				true	"Image ID"
//	@Param			body	body		RenameRequest	true	"New display name"
//	@Success		200		{object}	response.Envelope{data=Image}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Router			/v1/images/{id} [patch]
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	img, err := h.svc.Rename(r.Context(), auth.FromContext(r.Context()), id, req.ImageName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, img)
}

// Delete godoc
//
//	@Summary		Delete an image
//	@Description	Removes the stored file and then the image record. If the file cannot be removed the record is kept.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Image ID"
//	@Success		200	{object}	response.Envelope{data=DeleteResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		422	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/v1/images/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, DeleteResult{Deleted: true, ID: id})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		response.Unauthorized(w, err.Error())
	case errors.Is(err, ErrForbidden):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.As(err, &verr):
		response.BadRequest(w, verr.Message)
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrNotImage):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrInvalidRecord):
		h.log.Error("invalid image record", h.errFields(r, err)...)
		response.UnprocessableEntity(w, ErrInvalidRecord.Error())
	case errors.As(err, &tooLarge):
		response.PayloadTooLarge(w, "upload exceeds the size limit")
	case errors.Is(err, ErrUpstream):
		response.BadGateway(w, "object storage is unavailable, please retry")
	default:
		h.log.Error("image request failed", h.errFields(r, err)...)
		response.InternalError(w)
	}
}

func (h *Handler) errFields(r *http.Request, err error) []zap.Field {
	return []zap.Field{
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
		zap.String("user_id", auth.FromContext(r.Context()).UserID),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func openFiles(headers []*multipart.FileHeader) ([]UploadFile, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	files := make([]UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, f)
		files = append(files, UploadFile{Name: fh.Filename, Size: fh.Size, Body: f})
	}
	return files, closeAll, nil
}
