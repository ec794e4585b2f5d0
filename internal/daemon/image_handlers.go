package daemon

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"magpie/internal/api"
	"magpie/internal/gemini"
	"magpie/internal/imaging"
	"magpie/internal/services"
)

func (s *apiServer) requireImager(w http.ResponseWriter, r *http.Request) (Imager, bool) {
	if s.daemon.imager == nil {
		s.writeFailure(w, r, gemini.ErrMissingAPIKey)
		return nil, false
	}
	return s.daemon.imager, true
}

func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	imager, ok := s.requireImager(w, r)
	if !ok {
		return
	}
	var req api.AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	img, err := gemini.DecodeDataURL(req.Image, "image/jpeg")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	analysis, err := imager.AnalyzeImage(r.Context(), img)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

func (s *apiServer) handleImageGenerate(w http.ResponseWriter, r *http.Request) {
	imager, ok := s.requireImager(w, r)
	if !ok {
		return
	}
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	var req api.ImageGenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeFailure(w, r, fmt.Errorf("%w: prompt is required", services.ErrValidation))
		return
	}
	variant, err := gemini.ParseVariant(req.Variant)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	img, err := imager.GenerateImage(r.Context(), req.Prompt, variant, req.AspectRatio)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ImageResponse{Image: img.DataURL(), MIMEType: img.MIMEType})
}

func (s *apiServer) handleOutfit(w http.ResponseWriter, r *http.Request) {
	imager, ok := s.requireImager(w, r)
	if !ok {
		return
	}
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	var req api.OutfitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	person, err := gemini.DecodeDataURL(req.Person, "image/png")
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("person image: %w", err))
		return
	}
	garment, err := gemini.DecodeDataURL(req.Garment, "image/png")
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("garment image: %w", err))
		return
	}
	variant, err := gemini.ParseVariant(req.Variant)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	img, err := imager.ChangeOutfit(r.Context(), person, garment, req.Prompt, variant)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ImageResponse{Image: img.DataURL(), MIMEType: img.MIMEType})
}

func formFloat(r *http.Request, key string) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", services.ErrValidation, key)
	}
	return v, nil
}

// handleProcessImage compresses or converts the multipart "image" field.
// Form fields: quality (0..1), scale, format, max_width.
func (s *apiServer) handleProcessImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		s.writeFailure(w, r, fmt.Errorf("%w: parse form: %w", services.ErrValidation, err))
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("%w: image file is required", services.ErrValidation))
		return
	}
	data, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("%w: read image: %w", services.ErrValidation, err))
		return
	}

	var opts imaging.Options
	if opts.Quality, err = formFloat(r, "quality"); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if opts.Scale, err = formFloat(r, "scale"); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if opts.MaxWidth, err = formInt(r, "max_width"); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if opts.Format, err = imaging.ParseFormat(r.FormValue("format")); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	res, err := imaging.Process(bytes.NewReader(data), opts)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProcessResponse{
		Image:        gemini.Image{Data: res.Data, MIMEType: string(res.Format)}.DataURL(),
		Format:       string(res.Format),
		Width:        res.Width,
		Height:       res.Height,
		Size:         res.Size,
		SizeLabel:    imaging.FormatBytes(int64(res.Size)),
		OriginalSize: len(data),
		Savings:      imaging.Savings(len(data), res.Size),
	})
}
