package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Brownie44l1/upscaler/internal/config"
	"github.com/Brownie44l1/upscaler/internal/enhance"
	"github.com/Brownie44l1/upscaler/internal/imageio"
	"github.com/Brownie44l1/upscaler/internal/model"
	"github.com/Brownie44l1/upscaler/internal/raster"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	ModeClassical = "classical"
	ModeAI        = "ai"

	defaultIntensity = 1.0
)

var modes = []string{ModeClassical, ModeAI}

// Inspector describes a model graph. model.Runtime implements it.
type Inspector interface {
	Inspect(modelPath string) (*model.ModelInfo, error)
}

type Handler struct {
	enhancer  *enhance.Enhancer
	inspector Inspector
	cfg       *config.Config
	logger    logrus.FieldLogger
}

// NewHandler wires the HTTP endpoints. inspector may be nil when no
// inference runtime is available.
func NewHandler(enhancer *enhance.Enhancer, inspector Inspector, cfg *config.Config, logger logrus.FieldLogger) *Handler {
	return &Handler{
		enhancer:  enhancer,
		inspector: inspector,
		cfg:       cfg,
		logger:    logger,
	}
}

// Routes returns the router serving every endpoint.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(enableCORS, h.logRequests)

	r.Get("/health", h.Health)
	r.Get("/model", h.ModelInfo)
	r.Post("/enhance/image", h.EnhanceImage)
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	if h.cfg.ModelPath == "" || h.inspector == nil {
		http.Error(w, "No model configured", http.StatusNotFound)
		return
	}

	info, err := h.inspector.Inspect(h.cfg.ModelPath)
	if err != nil {
		h.logger.WithError(err).Error("model inspection failed")
		http.Error(w, "Failed to inspect model", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// EnhanceImage upscales the uploaded "image" field and answers with a PNG.
// The "mode" field picks the strategy; "intensity" tunes the classical one.
func (h *Handler) EnhanceImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(h.cfg.Server.MaxUploadMB << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	mode := r.FormValue("mode")
	if mode == "" {
		mode = ModeClassical
	}
	if !lo.Contains(modes, mode) {
		http.Error(w, "Unknown mode. Use 'classical' or 'ai'", http.StatusBadRequest)
		return
	}

	intensity := defaultIntensity
	if v := r.FormValue("intensity"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "Intensity must be a number", http.StatusBadRequest)
			return
		}
		intensity = parsed
	}

	if mode == ModeAI && h.cfg.ModelPath == "" {
		http.Error(w, "AI mode requires a configured model", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := imageio.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG, GIF, BMP, TIFF, WebP", http.StatusBadRequest)
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"file":   header.Filename,
		"format": format,
		"width":  img.Width,
		"height": img.Height,
		"mode":   mode,
	})
	log.Info("received image")

	var out *raster.Raster
	switch mode {
	case ModeAI:
		out, err = h.enhancer.AI(img, h.cfg.ModelPath, h.cfg.TileSize)
	default:
		out, err = h.enhancer.Classical(img, h.cfg.ScaleFactor, intensity)
	}
	if err != nil {
		log.WithError(err).Error("enhancement failed")
		http.Error(w, failureMessage(err), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := imageio.Encode(&buf, imageio.FormatPNG, out, imageio.Options{}); err != nil {
		log.WithError(err).Error("encoding failed")
		http.Error(w, "Failed to encode result", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Image-Width", strconv.Itoa(out.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(out.Height))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func failureMessage(err error) string {
	var loadErr *model.ModelLoadError
	var inferErr *model.InferenceError
	switch {
	case errors.As(err, &loadErr):
		return "Failed to load model"
	case errors.As(err, &inferErr):
		return "Inference failed"
	}
	return "Enhancement failed"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
