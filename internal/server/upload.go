package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	httperrors "github.com/gokatarajesh/notes-quiz/pkg/http/errors"
)

const multipartMemory = 8 << 20

var errBadRequest = errors.New("bad request")

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart bounds the body and parses the form.
func (h *handlers) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeJSON reads a JSON body. An empty body leaves v untouched.
func (h *handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func readUpload(fh *multipart.FileHeader) (upload, error) {
	f, err := fh.Open()
	if err != nil {
		return upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return upload{}, err
	}
	return upload{name: fh.Filename, contentType: fh.Header.Get("Content-Type"), data: data}, nil
}

// formFile returns the first file posted under field, if any.
func formFile(r *http.Request, field string) (*upload, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, nil
	}
	u, err := readUpload(r.MultipartForm.File[field][0])
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errBadRequest, field, err)
	}
	return &u, nil
}

// formFiles returns every file posted under field.
func formFiles(r *http.Request, field string) ([]upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	out := make([]upload, 0, len(r.MultipartForm.File[field]))
	for _, fh := range r.MultipartForm.File[field] {
		u, err := readUpload(fh)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", errBadRequest, field, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// formBool treats a missing field as false; "on" is accepted for checkboxes.
func formBool(r *http.Request, field string) bool {
	v := strings.TrimSpace(r.FormValue(field))
	if strings.EqualFold(v, "on") {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// respondError writes malformed-request failures as invalid_request and
// everything else through the domain mapping.
func respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequest) {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, err.Error())
		return
	}
	httperrors.RespondDomainError(w, err)
}
