package daemon

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"magpie/internal/api"
	"magpie/internal/gemini"
	"magpie/internal/generation"
	"magpie/internal/history"
	"magpie/internal/services"
	"magpie/internal/workflow"
)

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func formInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", services.ErrValidation, key)
	}
	return v, nil
}

// generationRequest reads either a multipart form (field "image" for the
// reference picture) or a JSON body with a data URL image.
func (s *apiServer) generationRequest(w http.ResponseWriter, r *http.Request) (generation.Request, error) {
	req := generation.Request{PageID: r.PathValue("id")}

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return req, fmt.Errorf("%w: parse form: %w", services.ErrValidation, err)
		}
		var err error
		req.Values = workflow.Values{
			Prompt:         r.FormValue("prompt"),
			NegativePrompt: r.FormValue("negative_prompt"),
			Model:          r.FormValue("model"),
		}
		if req.Values.BatchSize, err = formInt(r, "batch_size"); err != nil {
			return req, err
		}
		if req.Values.Width, err = formInt(r, "width"); err != nil {
			return req, err
		}
		if req.Values.Height, err = formInt(r, "height"); err != nil {
			return req, err
		}
		req.Department = r.FormValue("department")
		if file, header, err := r.FormFile("image"); err == nil {
			data, err := io.ReadAll(file)
			_ = file.Close()
			if err != nil {
				return req, fmt.Errorf("%w: read image: %w", services.ErrValidation, err)
			}
			req.Image = bytes.NewReader(data)
			req.ImageName = header.Filename
		}
		return req, nil
	}

	var body api.GenerateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		return req, err
	}
	req.Values = workflow.Values{
		Prompt:         body.Prompt,
		NegativePrompt: body.NegativePrompt,
		Model:          body.Model,
		BatchSize:      body.BatchSize,
		Width:          body.Width,
		Height:         body.Height,
	}
	req.Department = body.Department
	if body.Image != "" {
		img, err := gemini.DecodeDataURL(body.Image, "image/png")
		if err != nil {
			return req, err
		}
		req.Image = bytes.NewReader(img.Data)
		req.ImageName = body.ImageName
		if req.ImageName == "" {
			req.ImageName = "upload" + extensionFor(img.MIMEType)
		}
	}
	return req, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	// Polling can outlast the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	req, err := s.generationRequest(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	result, err := s.daemon.generator.Generate(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.recorder.List(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *apiServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.recorder.Clear(r.Context()); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
