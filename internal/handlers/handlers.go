package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/clothing-classifier/internal/inference"
	"github.com/Brownie44l1/clothing-classifier/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Predictor runs the full pipeline for one upload; *inference.Pipeline implements it.
type Predictor interface {
	Run(ctx context.Context, upload io.Reader, expected string) (*model.Prediction, error)
}

type Handler struct {
	predictor      Predictor
	labels         []string
	resultPath     string
	resultURL      string
	maxUploadBytes int64
}

// NewHandler serves predictions whose chart is written to resultPath and
// published under /static/.
func NewHandler(predictor Predictor, labels []string, resultPath string, maxUploadBytes int64) *Handler {
	return &Handler{
		predictor:      predictor,
		labels:         labels,
		resultPath:     resultPath,
		resultURL:      path.Join("/static", filepath.Base(resultPath)),
		maxUploadBytes: maxUploadBytes,
	}
}

// Router mounts the form, the prediction endpoint and the result chart.
func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Index)
	r.Post("/", h.Index)
	r.Post("/predict", h.Predict)

	r.Get(h.resultURL, h.Result)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("Request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, "index.html", map[string]any{"Labels": h.labels})
}

// Result serves the latest chart. It is overwritten on every prediction.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, h.resultPath)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			// plain form post: nothing to classify
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Malformed upload")
		respondError(w, r, http.StatusBadRequest, "Malformed upload")
		return
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || (err == nil && header.Filename == "") {
		if file != nil {
			file.Close()
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Unreadable upload")
		respondError(w, r, http.StatusBadRequest, "Malformed upload")
		return
	}
	defer file.Close()

	reqID := middleware.GetReqID(r.Context())
	log.Debug().
		Str("request_id", reqID).
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Msg("Received file")

	pred, err := h.predictor.Run(r.Context(), file, r.FormValue("expected"))
	if err != nil {
		status := http.StatusInternalServerError
		message := "Prediction failed"
		switch {
		case errors.Is(err, model.ErrDecode):
			status, message = http.StatusBadRequest, "Invalid image format"
		case errors.Is(err, inference.ErrUnknownClass):
			status, message = http.StatusBadRequest, "Unknown expected class"
		}
		log.Error().Err(err).Str("request_id", reqID).Int("status", status).Msg("Prediction error")
		respondError(w, r, status, message)
		return
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pred)
		return
	}

	render(w, http.StatusOK, "result.html", h.resultPage(pred))
}

type score struct {
	Label     string
	Percent   float32
	Predicted bool
	Expected  bool
}

type resultPage struct {
	ID       string
	Class    string
	Percent  float32
	Expected string
	ImageURL string
	Scores   []score
}

func (h *Handler) resultPage(pred *model.Prediction) resultPage {
	page := resultPage{
		ID:       pred.ID,
		Class:    pred.Class,
		Percent:  100 * pred.Confidence,
		ImageURL: h.resultURL + "?v=" + pred.ID,
	}
	if pred.Expected != nil {
		page.Expected = pred.Labels[*pred.Expected]
	}
	for i, p := range pred.Distribution {
		page.Scores = append(page.Scores, score{
			Label:     pred.Labels[i],
			Percent:   100 * p,
			Predicted: i == pred.Index,
			Expected:  pred.Expected != nil && i == *pred.Expected,
		})
	}
	return page
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Failed to render template")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   message,
		})
		return
	}
	render(w, status, "error.html", map[string]string{"Message": message})
}
