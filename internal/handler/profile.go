package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ricebook/internal/apperror"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/service"
	"github.com/sakif/ricebook/internal/upload"
)

// avatarFormField is the multipart field PUT /avatar reads the image from.
const avatarFormField = "avatar"

// ProfileHandler serves the per-field profile endpoints:
//
//	GET /{field}         own value (session required)
//	GET /{field}/{user}  anyone's value
//	PUT /{field}         set own value
//
// plus PUT /avatar (multipart), PUT /password and GET /dob.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// HandleGet returns a handler that reads field. The {user} URL parameter
// selects whose profile; without it, the caller's own.
func (h *ProfileHandler) HandleGet(field model.ProfileField) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "user")
		if username == "" {
			var err error
			if username, err = caller(r); err != nil {
				writeError(w, r, err)
				return
			}
		}

		value, err := h.profiles.Get(r.Context(), username, field)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"username":    username,
			string(field): value,
		})
	}
}

// HandleSet returns a handler that writes field from a body of the form
// {"<field>": "value"}.
func (h *ProfileHandler) HandleSet(field model.ProfileField) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, err := caller(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var body map[string]any
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		raw, present := body[string(field)]
		value, isString := raw.(string)
		if present && !isString {
			writeError(w, r, apperror.ValidationFailed(string(field), fmt.Sprintf("%s must be a string", field)))
			return
		}

		stored, err := h.profiles.Set(r.Context(), username, field, value)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"username":    username,
			string(field): stored,
		})
	}
}

// HandleSetPassword replaces the caller's password. Existing sessions stay
// valid.
//
// HTTP: PUT /password
// REQUEST BODY: {"password": "..."}
func (h *ProfileHandler) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.profiles.SetPassword(r.Context(), username, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: "success", Username: username})
}

// HandleSetAvatar stores an uploaded image as the caller's avatar.
//
// HTTP: PUT /avatar (multipart/form-data, image in field "avatar")
func (h *ProfileHandler) HandleSetAvatar(w http.ResponseWriter, r *http.Request) {
	username, err := caller(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Leave room for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarSize+maxBodySize)
	file, header, err := r.FormFile(avatarFormField)
	if err != nil {
		writeError(w, r, formFileError(err))
		return
	}
	defer file.Close()

	contentType, err := sniffImageType(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The file goes to the uploader as the seekable multipart.File: the S3
	// client needs to rewind the body to checksum it over plain HTTP.
	url, err := h.profiles.SetAvatar(r.Context(), username, contentType, file, header.Size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"username": username,
		"avatar":   url,
	})
}

func formFileError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return apperror.ValidationFailed(avatarFormField, fmt.Sprintf("avatar must be at most %d bytes", service.MaxAvatarSize))
	case errors.Is(err, http.ErrMissingFile):
		return apperror.ValidationFailed(avatarFormField, "avatar file is required")
	default:
		return apperror.ValidationFailed(avatarFormField, "expected a multipart form with an avatar file")
	}
}

// sniffImageType determines the file's type from its first bytes and rewinds
// it. The declared part Content-Type and the file name are ignored.
func sniffImageType(file multipart.File) (string, error) {
	head := make([]byte, upload.SniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading avatar: %w", err)
	}
	if n == 0 {
		return "", apperror.ValidationFailed(avatarFormField, "avatar file is empty")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding avatar: %w", err)
	}

	contentType, ok := upload.DetectImageType(head[:n])
	if !ok {
		return "", apperror.ValidationFailed(avatarFormField, "avatar must be a PNG, JPEG, GIF or WebP image")
	}
	return contentType, nil
}

// HandleGetDOB returns the caller's date of birth. Only the owner can read it.
//
// HTTP: GET /dob
func (h *ProfileHandler) HandleGetDOB(w http.ResponseWriter, r *http.Request) {
	h.HandleGet(model.FieldDOB)(w, r)
}
