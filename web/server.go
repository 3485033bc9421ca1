// ABOUTME: Web UI server with embedded templates
// ABOUTME: Provides a read-only dashboard of people, config versions and goal graphs
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/logging"
	"github.com/harperreed/engage/versioning"
	"github.com/harperreed/engage/viz"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Server struct {
	eng       *engine.Engine
	templates *template.Template
	generator *viz.GraphGenerator
}

func NewServer(eng *engine.Engine) (*Server, error) {
	funcMap := template.FuncMap{
		"percent": func(f float64) string {
			return fmt.Sprintf("%.0f%%", f*100)
		},
		"date": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.Format("2006-01-02")
		},
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Server{
		eng:       eng,
		templates: tmpl,
		generator: viz.NewGraphGenerator(eng.Store()),
	}, nil
}

// Handler returns the routes without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /people", s.handlePeople)
	mux.HandleFunc("GET /versions", s.handleVersions)
	mux.HandleFunc("GET /graphs/goals.dot", s.handleGoalGraph)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboardJSON)
	return mux
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	logging.Info("starting web server", zap.String("url", "http://"+addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) stats(r *http.Request) (*viz.DashboardStats, error) {
	opts := s.eng.Options()
	return viz.GenerateDashboardStats(r.Context(), s.eng.Store(), time.Now().UTC(), opts.ResponseTimeout, opts.ScoreMaxAge)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Stats":           stats,
		"Title":           "Dashboard",
		"ContentTemplate": "dashboard-content",
	}
	s.renderTemplate(w, data)
}

func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		logging.Warn("failed to encode dashboard", zap.Error(err))
	}
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	persons, err := s.eng.Store().ListPersons(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Persons":         persons,
		"Title":           "People",
		"ContentTemplate": "people-content",
	}
	s.renderTemplate(w, data)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.eng.Versioner().ListVersions(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats := make([]*versioning.Stats, 0, len(versions))
	for _, v := range versions {
		st, err := s.eng.Versioner().VersionStats(r.Context(), v.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stats = append(stats, st)
	}

	data := map[string]interface{}{
		"Versions":        stats,
		"Title":           "Config versions",
		"ContentTemplate": "versions-content",
	}
	s.renderTemplate(w, data)
}

func (s *Server) handleGoalGraph(w http.ResponseWriter, r *http.Request) {
	dot, err := s.generator.GenerateGoalGraph(r.Context(), r.URL.Query().Get("goal"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	_, _ = w.Write([]byte(dot))
}

func (s *Server) renderTemplate(w http.ResponseWriter, data map[string]interface{}) {
	// layout.html picks the content block named by ContentTemplate
	if err := s.templates.ExecuteTemplate(w, "layout.html", data); err != nil {
		logging.Error("template render failed", zap.Any("content", data["ContentTemplate"]), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
