package service

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/transmute-backend/internal/pkg/errors"
	"github.com/lk2023060901/transmute-backend/internal/pkg/response"
)

type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type WritableChecker interface {
	CheckWritable(dir string) error
}

type HealthInfo struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	GoVersion  string   `json:"go_version"`
	Uptime     string   `json:"uptime"`
	Converters []string `json:"converters"`
}

// HealthService answers liveness and readiness checks.
type HealthService struct {
	name       string
	version    string
	started    time.Time
	db         Pinger
	store      WritableChecker
	checkDirs  []string
	converters func() []string
}

func NewHealthService(name, version string, db Pinger, store WritableChecker, checkDirs []string, converters func() []string) *HealthService {
	return &HealthService{
		name:       name,
		version:    version,
		started:    time.Now(),
		db:         db,
		store:      store,
		checkDirs:  checkDirs,
		converters: converters,
	}
}

func (s *HealthService) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/info", s.Info)
		health.GET("/live", s.Live)
		health.GET("/ready", s.Ready)
	}
}

func (s *HealthService) Info(c *gin.Context) {
	info := HealthInfo{
		Name:      s.name,
		Version:   s.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if s.converters != nil {
		info.Converters = s.converters()
	}
	response.Success(c, info)
}

func (s *HealthService) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready fails when the database is unreachable or a storage directory is
// not writable.
func (s *HealthService) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			response.ErrorWithCode(c, apperrors.ErrServiceUnavail, "database: "+err.Error())
			return
		}
	}
	if s.store != nil {
		for _, dir := range s.checkDirs {
			if err := s.store.CheckWritable(dir); err != nil {
				response.ErrorWithCode(c, apperrors.ErrServiceUnavail, "storage: "+err.Error())
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
