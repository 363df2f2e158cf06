package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// our logger, after RequestID
	r.Use(RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Get("/formats", h.GetFormats)
	r.Get("/check/{sourceFormat}/{targetFormat}", h.CheckSupport)

	r.Post("/convert", h.CreateConversion)
	r.Get("/status/{jobID}", h.GetStatus)
	r.Get("/download/{jobID}", h.Download)

	r.Post("/batch-convert", h.CreateBatch)
	r.Get("/batch-status/{batchID}", h.BatchStatus)
	r.Get("/download-batch/{batchID}", h.DownloadBatch)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
