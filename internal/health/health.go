package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"manualbase/internal/backend"
)

// Pinger — удалённый API, без которого сервис бесполезен.
type Pinger interface {
	Health(ctx context.Context) (backend.HealthResponse, error)
}

// RegisterRoutes — базовый liveness.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
}

// RegisterRoutesWithDeps — liveness + readiness: БД (если настроена)
// и удалённый API.
func RegisterRoutesWithDeps(r *mux.Router, db *gorm.DB, api Pinger) {
	RegisterRoutes(r)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
		defer cancel()
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil {
				http.Error(w, "db handle error", http.StatusServiceUnavailable)
				return
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				http.Error(w, "db unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		if api != nil {
			if _, err := api.Health(ctx); err != nil {
				http.Error(w, "backend unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
