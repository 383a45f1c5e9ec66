// Package server exposes the log analyzer over HTTP.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/loganalyzer/internal/common/appcontext"
	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/common/health"
	"github.com/G-Research/loganalyzer/internal/common/logging"
	"github.com/G-Research/loganalyzer/internal/common/task"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/service"
)

const (
	defaultEventPage  = 1
	defaultEventLimit = 100
	uploadFormField   = "file"
)

// LogAnalyzer is the set of operations served over HTTP.
type LogAnalyzer interface {
	StartAnalysis(ctx *appcontext.Context, logId string) (*model.Job, *task.Task, error)
	GetSummary(ctx *appcontext.Context, logId string) (*model.Summary, error)
	QueryEvents(ctx *appcontext.Context, logId string, q *model.EventQuery) (*model.EventPage, error)
	GetJob(ctx *appcontext.Context, jobId string) (*model.Job, error)
	ListJobs(ctx *appcontext.Context, logId string, limit int) ([]*model.Job, error)
	Upload(ctx *appcontext.Context, owner string, filename string, content io.Reader) (*model.LogFile, error)
	RegisterUpload(ctx *appcontext.Context, req *service.RegisterRequest) (*model.LogFile, error)
	GetLog(ctx *appcontext.Context, logId string) (*model.LogFile, error)
	ListLogs(ctx *appcontext.Context, owner string, limit int) ([]*model.LogFile, error)
	DeleteLog(ctx *appcontext.Context, logId string) error
}

type Config struct {
	CorsAllowedOrigins []string
	// Largest accepted upload in bytes. Zero means unlimited.
	MaxUploadBytes int64
}

type server struct {
	api    LogAnalyzer
	config Config
}

// NewHandler returns the HTTP handler serving api, including the /health endpoint backed by checker.
func NewHandler(api LogAnalyzer, checker health.Checker, config Config) http.Handler {
	s := &server{api: api, config: config}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /logs/upload", s.upload)
	mux.HandleFunc("POST /logs/register-upload", s.registerUpload)
	mux.HandleFunc("GET /logs", s.listLogs)
	mux.HandleFunc("GET /logs/{logId}", s.getLog)
	mux.HandleFunc("DELETE /logs/{logId}", s.deleteLog)
	mux.HandleFunc("POST /logs/{logId}/analyze", s.analyze)
	mux.HandleFunc("GET /logs/{logId}/summary", s.getSummary)
	mux.HandleFunc("GET /logs/{logId}/events", s.queryEvents)
	mux.HandleFunc("GET /logs/{logId}/jobs", s.listJobs)
	mux.HandleFunc("GET /jobs/{jobId}", s.getJob)
	health.Register(mux, checker)

	var handler http.Handler = mux
	handler = handlers.CompressHandler(handler)
	handler = handlers.CustomLoggingHandler(io.Discard, handler, logRequest)
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(log.StandardLogger()))(handler)
	if len(config.CorsAllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(config.CorsAllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete}),
			handlers.AllowedHeaders([]string{"Content-Type", "Accept", "Authorization"}),
			handlers.AllowCredentials(),
		)(handler)
	}
	return handler
}

func logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	log.WithFields(log.Fields{
		"method": params.Request.Method,
		"path":   params.URL.Path,
		"status": params.StatusCode,
		"size":   params.Size,
	}).Debug("handled request")
}

func requestContext(r *http.Request) *appcontext.Context {
	return appcontext.WithLogFields(appcontext.FromContext(r.Context()), log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
}

func (s *server) upload(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		writeError(ctx, w, &apperrors.ErrInvalidArgument{Name: uploadFormField, Value: "", Message: err.Error()})
		return
	}
	defer file.Close()

	logFile, err := s.api.Upload(ctx, r.FormValue("owner"), header.Filename, file)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, map[string]string{"logId": logFile.Id})
}

func (s *server) registerUpload(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	req := &service.RegisterRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(ctx, w, &apperrors.ErrInvalidArgument{Name: "body", Value: "", Message: err.Error()})
		return
	}
	logFile, err := s.api.RegisterUpload(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, map[string]interface{}{"ok": true, "logId": logFile.Id})
}

func (s *server) listLogs(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	logs, err := s.api.ListLogs(ctx, r.URL.Query().Get("owner"), limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, logs)
}

func (s *server) getLog(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	logFile, err := s.api.GetLog(ctx, r.PathValue("logId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, logFile)
}

func (s *server) deleteLog(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	if err := s.api.DeleteLog(ctx, r.PathValue("logId")); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *server) analyze(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	job, _, err := s.api.StartAnalysis(ctx, r.PathValue("logId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, map[string]interface{}{"jobId": job.Id, "status": job.Status})
}

func (s *server) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	summary, err := s.api.GetSummary(ctx, r.PathValue("logId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, summary)
}

func (s *server) queryEvents(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	q, err := eventQuery(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	page, err := s.api.QueryEvents(ctx, r.PathValue("logId"), q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, page)
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	jobs, err := s.api.ListJobs(ctx, r.PathValue("logId"), limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, jobs)
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	job, err := s.api.GetJob(ctx, r.PathValue("jobId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJson(ctx, w, http.StatusOK, job)
}

// eventQuery reads page, limit, ip, status, from, to and sort. A sort value starting with '-' selects descending
// order.
func eventQuery(r *http.Request) (*model.EventQuery, error) {
	values := r.URL.Query()
	page, err := intParam(r, "page", defaultEventPage)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(r, "limit", defaultEventLimit)
	if err != nil {
		return nil, err
	}
	q := &model.EventQuery{
		Page:       page,
		Limit:      limit,
		Ip:         values.Get("ip"),
		From:       values.Get("from"),
		To:         values.Get("to"),
		Descending: strings.HasPrefix(values.Get("sort"), "-"),
	}
	if values.Has("status") {
		status, err := intParam(r, "status", 0)
		if err != nil {
			return nil, err
		}
		q.Status = &status
	}
	return q, nil
}

func intParam(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.WithStack(&apperrors.ErrInvalidArgument{Name: name, Value: raw, Message: "must be an integer"})
	}
	return value, nil
}

func writeJson(ctx *appcontext.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ctx.Log.WithError(err).Warn("failed to write response")
	}
}

func writeError(ctx *appcontext.Context, w http.ResponseWriter, err error) {
	status := apperrors.HttpStatusFromError(err)
	if status >= http.StatusInternalServerError {
		logging.WithStacktrace(ctx.Log, err).Error("request failed")
	} else {
		ctx.Log.WithError(err).Debug("request rejected")
	}
	writeJson(ctx, w, status, map[string]string{"error": err.Error()})
}
