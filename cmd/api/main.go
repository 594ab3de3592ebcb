package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/auth"
	"github.com/cris-mate/guardian-optix-sub000/internal/config"
	"github.com/cris-mate/guardian-optix-sub000/internal/coverage"
	"github.com/cris-mate/guardian-optix-sub000/internal/geo"
	"github.com/cris-mate/guardian-optix-sub000/internal/httpmiddleware"
	"github.com/cris-mate/guardian-optix-sub000/internal/match"
	"github.com/cris-mate/guardian-optix-sub000/internal/metrics"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/notify"
	"github.com/cris-mate/guardian-optix-sub000/internal/queue"
	"github.com/cris-mate/guardian-optix-sub000/internal/shift"
	"github.com/cris-mate/guardian-optix-sub000/internal/store"
	"github.com/cris-mate/guardian-optix-sub000/internal/timeclock"
)

// backend is the union of persistence surfaces the services draw on. Both
// the Postgres repositories and the in-memory store satisfy it.
type backend interface {
	shift.Store
	timeclock.Store
	coverage.SiteStore
	match.ShiftFinder
	PutOfficer(ctx context.Context, o model.Officer) error
	PutSite(ctx context.Context, s model.Site) error
	ListOfficers(ctx context.Context) ([]model.Officer, error)
}

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	var bk backend
	usingPostgres := false
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable, using in-memory store: %v", err)
		_ = db.Close()
		bk = store.NewMemory()
		seedDemoData(ctx, bk)
	} else {
		defer db.Close()
		pg := store.NewPostgres(db.Client)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		bk = pg
		usingPostgres = true
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.NotifyQueueKey)
	}
	sink := notify.NewPublisher(q)

	ledger := shift.NewLedger(bk, sink)
	scorer := match.NewScorer(geo.NewGazetteer(), bk)
	clock := timeclock.NewClock(bk, ledger, sink, cfg.DailyStandardMinutes)
	expander := coverage.NewExpander(bk, ledger, cfg.GenerateConcurrency)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := usingPostgres
		status := http.StatusOK
		if !redisHealthy && cfg.QueueBackend != "memory" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Operator identification only; authorization policy lives upstream.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			OperatorID string `json:"operator_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperr.New(apperr.Validation, "operator_id required"))
			return
		}
		tokens, err := auth.Issue(req.OperatorID, "operator", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "token issue failed"})
			return
		}
		ok(c, http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	v1 := r.Group("/v1", auth.OperatorAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	v1.POST("/shifts", func(c *gin.Context) {
		var req struct {
			OfficerID string   `json:"officer_id"`
			SiteID    string   `json:"site_id" binding:"required"`
			Date      string   `json:"date" binding:"required"`
			ShiftType string   `json:"shift_type" binding:"required"`
			StartTime string   `json:"start_time"`
			EndTime   string   `json:"end_time"`
			Tasks     []string `json:"tasks"`
			Notes     string   `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperr.New(apperr.Validation, "%s", err.Error()))
			return
		}
		s, err := ledger.Create(c.Request.Context(), shift.CreateRequest{
			OfficerID: req.OfficerID,
			SiteID:    req.SiteID,
			Date:      req.Date,
			ShiftType: req.ShiftType,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Tasks:     req.Tasks,
			Notes:     req.Notes,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusCreated, s)
	})

	v1.GET("/shifts", func(c *gin.Context) {
		f := shift.Filter{
			FromDate:  c.Query("from"),
			ToDate:    c.Query("to"),
			OfficerID: c.Query("officer_id"),
			SiteID:    c.Query("site_id"),
			ShiftType: c.Query("shift_type"),
			Status:    c.Query("status"),
			Limit:     intQuery(c, "limit", 50),
			Offset:    intQuery(c, "offset", 0),
		}
		shifts, total, err := ledger.List(c.Request.Context(), f)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"shifts": shifts, "total": total})
	})

	v1.PUT("/shifts/:id", func(c *gin.Context) {
		var req struct {
			OfficerID *string `json:"officer_id"`
			SiteID    *string `json:"site_id"`
			Date      *string `json:"date"`
			ShiftType *string `json:"shift_type"`
			StartTime *string `json:"start_time"`
			EndTime   *string `json:"end_time"`
			Notes     *string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperr.New(apperr.Validation, "%s", err.Error()))
			return
		}
		s, err := ledger.Update(c.Request.Context(), c.Param("id"), shift.UpdatePatch{
			OfficerID: req.OfficerID,
			SiteID:    req.SiteID,
			Date:      req.Date,
			ShiftType: req.ShiftType,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Notes:     req.Notes,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, s)
	})

	v1.PATCH("/shifts/:id/status", func(c *gin.Context) {
		var req struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperr.New(apperr.Validation, "status required"))
			return
		}
		s, err := ledger.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
		if err != nil {
			fail(c, err)
			return
		}
		metrics.ShiftTransitions.WithLabelValues(s.Status).Inc()
		ok(c, http.StatusOK, s)
	})

	v1.PATCH("/shifts/:id/tasks/:taskId", func(c *gin.Context) {
		var req struct {
			Completed bool `json:"completed"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperr.New(apperr.Validation, "%s", err.Error()))
			return
		}
		actor := operatorID(c)
		s, err := ledger.SetTaskStatus(c.Request.Context(), c.Param("id"), c.Param("taskId"), req.Completed, actor)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, s)
	})

	v1.DELETE("/shifts/:id", func(c *gin.Context) {
		if err := ledger.Delete(c.Request.Context(), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"deleted": true})
	})

	v1.GET("/recommended-officers/:siteId", func(c *gin.Context) {
		site, err := bk.GetSite(c.Request.Context(), c.Param("siteId"))
		if err != nil {
			fail(c, apperr.Wrap(apperr.Storage, err, "load site"))
			return
		}
		if site == nil {
			fail(c, apperr.New(apperr.NotFound, "site %s not found", c.Param("siteId")))
			return
		}
		date := c.Query("date")
		if date == "" {
			date = model.DateKey(time.Now().UTC())
		}
		candidates, err := bk.ListOfficers(c.Request.Context())
		if err != nil {
			fail(c, apperr.Wrap(apperr.Storage, err, "list officers"))
			return
		}
		ranked, err := scorer.Recommend(c.Request.Context(), *site, candidates, match.Context{
			Date:      date,
			ShiftType: c.Query("shift_type"),
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"officers": ranked})
	})

	v1.POST("/generate/:siteId", func(c *gin.Context) {
		w, err := parseWindow(c)
		if err != nil {
			fail(c, err)
			return
		}
		created, err := expander.ExpandSite(c.Request.Context(), c.Param("siteId"), w, boolQuery(c, "skip_existing", true))
		if err != nil {
			fail(c, err)
			return
		}
		metrics.ShiftsGenerated.Add(float64(len(created)))
		ok(c, http.StatusCreated, gin.H{"created": len(created), "shifts": created})
	})

	v1.POST("/generate-all", func(c *gin.Context) {
		w, err := parseWindow(c)
		if err != nil {
			fail(c, err)
			return
		}
		results, err := expander.ExpandAll(c.Request.Context(), w, boolQuery(c, "skip_existing", true))
		if err != nil {
			fail(c, err)
			return
		}
		total := 0
		for _, res := range results {
			total += res.Created
		}
		metrics.ShiftsGenerated.Add(float64(total))
		ok(c, http.StatusOK, gin.H{"created": total, "sites": results})
	})

	type clockReq struct {
		OfficerID string          `json:"officer_id" binding:"required"`
		Location  *model.Location `json:"location"`
		SiteID    string          `json:"site_id"`
		ShiftID   string          `json:"shift_id"`
	}
	clockHandler := func(name string, action func(ctx context.Context, req clockReq) (model.ClockSession, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			var req clockReq
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, apperr.New(apperr.Validation, "%s", err.Error()))
				return
			}
			session, err := action(c.Request.Context(), req)
			if err != nil {
				fail(c, err)
				return
			}
			metrics.ClockActions.WithLabelValues(name, session.GeofenceStatus).Inc()
			if session.GeofenceStatus == model.GeofenceOutside {
				metrics.GeofenceViolations.Inc()
			}
			ok(c, http.StatusOK, session)
		}
	}

	v1.POST("/clock-in", clockHandler(model.EntryClockIn, func(ctx context.Context, req clockReq) (model.ClockSession, error) {
		return clock.ClockIn(ctx, req.OfficerID, req.Location, req.SiteID, req.ShiftID)
	}))
	v1.POST("/clock-out", clockHandler(model.EntryClockOut, func(ctx context.Context, req clockReq) (model.ClockSession, error) {
		return clock.ClockOut(ctx, req.OfficerID, req.Location)
	}))
	v1.POST("/break/start", clockHandler(model.EntryBreakStart, func(ctx context.Context, req clockReq) (model.ClockSession, error) {
		return clock.StartBreak(ctx, req.OfficerID, req.Location)
	}))
	v1.POST("/break/end", clockHandler(model.EntryBreakEnd, func(ctx context.Context, req clockReq) (model.ClockSession, error) {
		return clock.EndBreak(ctx, req.OfficerID, req.Location)
	}))

	v1.GET("/status", func(c *gin.Context) {
		officerID := c.Query("officer_id")
		if officerID == "" {
			fail(c, apperr.New(apperr.Validation, "officer_id required"))
			return
		}
		session, err := clock.Status(c.Request.Context(), officerID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, session)
	})

	v1.GET("/timesheet/today", func(c *gin.Context) {
		officerID := c.Query("officer_id")
		if officerID == "" {
			fail(c, apperr.New(apperr.Validation, "officer_id required"))
			return
		}
		ts, err := clock.TodayTimesheet(c.Request.Context(), officerID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, ts)
	})

	v1.GET("/timesheet/weekly", func(c *gin.Context) {
		officerID := c.Query("officer_id")
		if officerID == "" {
			fail(c, apperr.New(apperr.Validation, "officer_id required"))
			return
		}
		weekOf := time.Now().UTC()
		if v := c.Query("week_of"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				fail(c, apperr.New(apperr.Validation, "invalid week_of %q", v))
				return
			}
			weekOf = parsed
		}
		summary, err := clock.WeeklyTimesheet(c.Request.Context(), officerID, weekOf, cfg.WeeklyStandardMinutes)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, summary)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// ok writes the success envelope.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// fail maps a classified error onto its HTTP status.
func fail(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"success": false, "message": err.Error()})
}

func operatorID(c *gin.Context) string {
	claimsAny, _ := c.Get("claims")
	if claims, okc := claimsAny.(auth.Claims); okc {
		return claims.Subject
	}
	return ""
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolQuery(c *gin.Context, key string, fallback bool) bool {
	switch c.Query(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return fallback
}

func parseWindow(c *gin.Context) (coverage.Window, error) {
	var req struct {
		Start string `json:"start" binding:"required"`
		End   string `json:"end" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return coverage.Window{}, apperr.New(apperr.Validation, "start and end dates required")
	}
	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		return coverage.Window{}, apperr.New(apperr.Validation, "invalid start date %q", req.Start)
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		return coverage.Window{}, apperr.New(apperr.Validation, "invalid end date %q", req.End)
	}
	return coverage.Window{Start: start, End: end}, nil
}

// corsMiddleware handles browser requests from the operator dashboard.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// seedDemoData loads a small roster so the in-memory fallback is usable.
func seedDemoData(ctx context.Context, bk backend) {
	officers := []model.Officer{
		{ID: "off-001", Name: "A. Mensah", Postcode: "SW1A 2AA", GuardType: "static", Availability: "true", ShiftTime: "any"},
		{ID: "off-002", Name: "J. Kovacs", Postcode: "E1 6AN", GuardType: "mobile-patrol", Availability: "partial", ShiftTime: "night"},
		{ID: "off-003", Name: "P. Osei", Postcode: "CR0 1PB", GuardType: "concierge", Availability: "true", ShiftTime: "day"},
	}
	for _, o := range officers {
		if err := bk.PutOfficer(ctx, o); err != nil {
			log.Printf("seed officer %s: %v", o.ID, err)
		}
	}
	end := time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC)
	sites := []model.Site{
		{
			ID: "site-001", Name: "Westgate Retail Park", Active: true, SiteType: "retail", Postcode: "SW1A 1AA",
			Geofence: &model.Geofence{Center: &model.Location{Latitude: 51.5010, Longitude: -0.1416}, Radius: 200, Enabled: true},
			Coverage: &model.CoverageRequirement{
				ContractStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				ContractEnd:   &end,
				DaysOfWeek:    []int{1, 2, 3, 4, 5, 6},
				ShiftsPerDay: []model.ShiftTemplate{
					{ShiftType: model.ShiftMorning, GuardsRequired: 1, GuardType: "static"},
					{ShiftType: model.ShiftNight, GuardsRequired: 2, GuardType: "static"},
				},
			},
		},
		{
			ID: "site-002", Name: "Dockside Logistics Hub", Active: true, SiteType: "industrial", Postcode: "E1 7HT",
			Geofence: &model.Geofence{Center: &model.Location{Latitude: 51.5170, Longitude: -0.0550}, Enabled: true},
			Coverage: &model.CoverageRequirement{
				ContractStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
				IsOngoing:     true,
				DaysOfWeek:    []int{1, 2, 3, 4, 5, 6, 7},
				ShiftsPerDay: []model.ShiftTemplate{
					{ShiftType: model.ShiftNight, GuardsRequired: 1, GuardType: "mobile-patrol"},
				},
			},
		},
	}
	for _, s := range sites {
		if err := bk.PutSite(ctx, s); err != nil {
			log.Printf("seed site %s: %v", s.ID, err)
		}
	}
	log.Println("seeded demo roster (in-memory store)")
}
