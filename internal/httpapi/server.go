package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/relay/internal/db"
	"horse.fit/relay/internal/globaltime"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

var listableStatuses = map[string]bool{
	db.StatusPending:   true,
	db.StatusApproved:  true,
	db.StatusRejected:  true,
	db.StatusPublished: true,
}

// Store is the database surface the moderation API reads and writes.
// *db.Pool satisfies it.
type Store interface {
	QueryStats(ctx context.Context) (db.Stats, error)
	ListItemsByStatus(ctx context.Context, status string, limit, offset int) ([]db.ItemSummary, error)
	CountItemsByStatus(ctx context.Context, status string) (int64, error)
	GetItemByUUID(ctx context.Context, itemUUID string) (db.ItemSummary, error)
	TransitionItemStatus(ctx context.Context, itemUUID, fromStatus, toStatus string) (db.ItemSummary, error)
}

// FetchRequester queues an out-of-band fetch cycle.
type FetchRequester interface {
	RequestFetch()
}

type Options struct {
	Host            string
	Port            int
	APIToken        string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	store  Store
	fetch  FetchRequester
	logger zerolog.Logger
	opts   Options
}

func NewServer(store Store, fetch FetchRequester, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8092
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		store:  store,
		fetch:  fetch,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			APIToken:        strings.TrimSpace(opts.APIToken),
			AllowedOrigins:  origins,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("relay api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("relay api server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1", s.requireToken)
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/items", s.handleItems)
	api.GET("/items/:item_uuid", s.handleItemDetail)
	api.POST("/items/:item_uuid/approve", s.handleApprove)
	api.POST("/items/:item_uuid/reject", s.handleReject)
	api.POST("/fetch", s.handleFetch)

	return e
}

// requireToken enforces bearer auth when an API token is configured. The
// health endpoint stays open for probes.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.APIToken == "" || strings.HasSuffix(c.Path(), "/health") {
			return next(c)
		}

		header := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) != s.opts.APIToken {
			return fail(c, http.StatusUnauthorized, "Missing or invalid token", nil)
		}
		return next(c)
	}
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "relay",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.QueryStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleItems(c echo.Context) error {
	status := strings.TrimSpace(strings.ToLower(c.QueryParam("status")))
	if status == "" {
		status = db.StatusPending
	}
	if !listableStatuses[status] {
		return failValidation(c, map[string]string{"status": "must be pending, approved, rejected or published"})
	}

	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	ctx := c.Request().Context()
	total, err := s.store.CountItemsByStatus(ctx, status)
	if err != nil {
		s.logger.Error().Err(err).Str("status", status).Msg("count items failed")
		return internalError(c, "Failed to load items")
	}

	items, err := s.store.ListItemsByStatus(ctx, status, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error().Err(err).Str("status", status).Msg("list items failed")
		return internalError(c, "Failed to load items")
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return success(c, map[string]any{
		"items":  items,
		"status": status,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
	})
}

func (s *Server) handleItemDetail(c echo.Context) error {
	itemUUID := strings.TrimSpace(c.Param("item_uuid"))
	if itemUUID == "" {
		return failValidation(c, map[string]string{"item_uuid": "is required"})
	}

	item, err := s.store.GetItemByUUID(c.Request().Context(), itemUUID)
	if err != nil {
		if errors.Is(err, db.ErrItemNotFound) {
			return failNotFound(c, "Item not found")
		}
		s.logger.Error().Err(err).Str("item_uuid", itemUUID).Msg("load item failed")
		return internalError(c, "Failed to load item")
	}
	return success(c, item)
}

func (s *Server) handleApprove(c echo.Context) error {
	return s.handleDecision(c, db.StatusApproved)
}

func (s *Server) handleReject(c echo.Context) error {
	return s.handleDecision(c, db.StatusRejected)
}

func (s *Server) handleDecision(c echo.Context, toStatus string) error {
	itemUUID := strings.TrimSpace(c.Param("item_uuid"))
	if itemUUID == "" {
		return failValidation(c, map[string]string{"item_uuid": "is required"})
	}

	item, err := s.store.TransitionItemStatus(c.Request().Context(), itemUUID, db.StatusPending, toStatus)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrItemNotFound):
			return failNotFound(c, "Item not found")
		case errors.Is(err, db.ErrConflictingStatus):
			return fail(c, http.StatusConflict, "Item is no longer pending", nil)
		default:
			s.logger.Error().Err(err).Str("item_uuid", itemUUID).Msg("item decision failed")
			return internalError(c, "Failed to apply decision")
		}
	}
	return success(c, item)
}

func (s *Server) handleFetch(c echo.Context) error {
	if s.fetch == nil {
		return fail(c, http.StatusServiceUnavailable, "Fetch trigger unavailable", nil)
	}
	s.fetch.RequestFetch()
	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"queued": true,
	})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
