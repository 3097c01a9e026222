package main

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"jobscout-backend/lib/scrapers/linkedin/core"
	"jobscout-backend/lib/scrapers/linkedin/listing"
	"jobscout-backend/lib/scrapers/linkedin/posting"
	"jobscout-backend/services/jobscout"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	engine *jobscout.Engine
	config jobscout.Config
}

func NewServer(engine *jobscout.Engine, config jobscout.Config) *Server {
	return &Server{engine: engine, config: config}
}

func (s *Server) Router() http.Handler {
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/", s.index)
	r.GET("/health", s.health)
	r.GET("/jobs", s.scrapeDefault)
	r.POST("/jobs/custom", s.scrapeCustom)
	r.GET("/jobs/search", s.search)
	if s.engine.Store != nil {
		r.GET("/runs", s.runs)
	}

	return r
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "jobscout api",
		"endpoints": gin.H{
			"/jobs":        "GET - Scrape jobs using the configured default searches",
			"/jobs/custom": "POST - Scrape jobs with custom search urls",
			"/jobs/search": "GET - Scrape jobs for ad-hoc keywords and filters",
			"/runs":        "GET - Run history, when a store is configured",
			"/health":      "GET - Health check",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"authenticated": s.engine.Client.State() == core.StateAuthenticated,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

func (s *Server) scrapeDefault(c *gin.Context) {
	result, err := s.engine.Service.Run(c.Request.Context(), jobscout.RunRequest{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scraping failed: " + err.Error()})
		return
	}
	s.respond(c, result)
}

type searchUrl struct {
	Name        string `json:"name"`
	Url         string `json:"url"`
	Description string `json:"description"`
}

type customRequest struct {
	SearchUrls      []searchUrl `json:"search_urls"`
	MaxPages        int         `json:"max_pages"`
	FilterEasyApply bool        `json:"filter_easy_apply"`
}

func (s *Server) scrapeCustom(c *gin.Context) {
	var req customRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format: " + err.Error()})
		return
	}

	var queries []listing.SearchQuery
	for _, u := range req.SearchUrls {
		if u.Url == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("search url %q has no url", u.Name)})
			return
		}
		queries = append(queries, listing.SearchQuery{Name: u.Name, URL: u.Url})
	}

	result, err := s.engine.Service.Run(c.Request.Context(), jobscout.RunRequest{
		Queries:         queries,
		MaxPages:        req.MaxPages,
		FilterEasyApply: req.FilterEasyApply,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Custom scraping failed: " + err.Error()})
		return
	}
	s.respond(c, result)
}

func (s *Server) search(c *gin.Context) {
	keywords := c.Query("keywords")
	if keywords == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keywords is required"})
		return
	}
	location := c.DefaultQuery("location", "101282230")
	experienceLevel := c.DefaultQuery("experience_level", "2")
	timeFilter := c.DefaultQuery("time_filter", "r3600")
	maxPages := 1
	if raw := c.Query("max_pages"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &maxPages); err != nil || maxPages < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_pages must be a positive integer"})
			return
		}
	}

	rawUrl := fmt.Sprintf(
		"https://www.linkedin.com/jobs/search/?f_E=%s&f_TPR=%s&geoId=%s&keywords=%s&origin=JOB_SEARCH_PAGE_SEARCH_BUTTON&refresh=true",
		url.QueryEscape(experienceLevel), url.QueryEscape(timeFilter),
		url.QueryEscape(location), url.QueryEscape(keywords),
	)

	result, err := s.engine.Service.Run(c.Request.Context(), jobscout.RunRequest{
		Queries: []listing.SearchQuery{{
			Name: keywords + " Jobs - Custom Search",
			URL:  rawUrl,
		}},
		MaxPages: maxPages,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Job search failed: " + err.Error()})
		return
	}
	s.respond(c, result)
}

func (s *Server) runs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
	}

	runs, err := s.engine.Store.Runs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read run history: " + err.Error()})
		return
	}
	total, err := s.engine.Store.UniqueJobCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read run history: " + err.Error()})
		return
	}

	summaries := make([]gin.H, len(runs))
	for i, run := range runs {
		summaries[i] = gin.H{
			"id":               run.ID,
			"started_at":       run.StartedAt.Format(time.RFC3339),
			"finished_at":      run.FinishedAt.Format(time.RFC3339),
			"total_unique":     run.TotalUnique,
			"total_duplicates": run.TotalDuplicates,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":            summaries,
		"all_time_unique": total,
	})
}

func (s *Server) respond(c *gin.Context, result jobscout.RunResult) {
	jobs := make([]gin.H, len(result.Jobs))
	for i, job := range result.Jobs {
		jobs[i] = jobPayload(job)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    fmt.Sprintf("Successfully scraped %d jobs", result.TotalUnique),
		"jobs":       jobs,
		"total_jobs": result.TotalUnique,
		"queries":    result.Queries,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

func jobPayload(job posting.JobRecord) gin.H {
	payload := gin.H{"easy_apply": job.EasyApply}
	for _, name := range posting.OutputFields {
		if name == "easy_apply" {
			continue
		}
		value, _ := job.Field(name)
		payload[name] = value
	}
	return payload
}
