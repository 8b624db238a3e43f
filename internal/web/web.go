package web

import (
	"archive/zip"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/metrics"
	"github.com/local/pagetrim/internal/pages"
	"github.com/local/pagetrim/internal/rebuild"
	"github.com/local/pagetrim/internal/render"
	"github.com/local/pagetrim/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Documents is what the UI needs from the session.
type Documents interface {
	LoadMany(files []session.File) []session.LoadResult
	Documents() []*session.Document
	Pages(id string) ([]pages.Record, error)
	Cycle(id string, page int) (pages.Action, error)
	RemoveDocument(id string) error
	Preview(id string, page int, opts render.Options) (*render.Image, error)
	Export(id string) (*session.Export, error)
	ExportAll() []session.ExportResult
}

// Options configures the UI.
type Options struct {
	Profile     string
	MaxUploadMB int
	Timeout     time.Duration
}

type Web struct {
	tpl     *template.Template
	docs    Documents
	opts    Options
	started time.Time
}

func New(docs Documents, opts Options) *Web {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 200
	}
	tpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))
	return &Web{tpl: tpl, docs: docs, opts: opts, started: time.Now()}
}

// Handler builds the router with middleware and every route.
func (w *Web) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	if w.opts.Timeout > 0 {
		r.Use(chimiddleware.Timeout(w.opts.Timeout))
	}
	w.RegisterRoutes(r)
	return r
}

func (w *Web) RegisterRoutes(r chi.Router) {
	r.Get("/", w.handleIndex)
	r.Get("/health", w.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/download-all", w.handleDownloadAll)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", w.handleUpload)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", w.handleRemove)
			r.Get("/download", w.handleDownload)
			r.Get("/pages/{page}/preview", w.handlePreview)
			r.Post("/pages/{page}/cycle", w.handleCycle)
		})
	})
}

type pageView struct {
	Number int
	Action string
	Label  string
}

type docView struct {
	Doc   *session.Document
	Pages []pageView
}

func (w *Web) handleIndex(wr http.ResponseWriter, r *http.Request) {
	var views []docView
	for _, d := range w.docs.Documents() {
		recs, err := w.docs.Pages(d.ID)
		if err != nil {
			continue
		}
		v := docView{Doc: d, Pages: make([]pageView, len(recs))}
		for i, rec := range recs {
			v.Pages[i] = pageView{Number: rec.Page, Action: rec.Action.String(), Label: rec.Action.Label()}
		}
		views = append(views, v)
	}
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := w.tpl.ExecuteTemplate(wr, "index.html", map[string]any{
		"Documents": views,
		"Profile":   w.opts.Profile,
	}); err != nil {
		log.Error().Err(err).Msg("render index")
	}
}

func (w *Web) handleHealth(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "pagetrim",
		"documents": len(w.docs.Documents()),
		"uptime":    time.Since(w.started).Round(time.Second).String(),
	})
}

type uploadResponse struct {
	Documents []*session.Document `json:"documents"`
	Notices   []string            `json:"notices"`
}

func (w *Web) handleUpload(wr http.ResponseWriter, r *http.Request) {
	limit := int64(w.opts.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(wr, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(wr, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(wr, http.StatusBadRequest, "no files in field \"files\"")
		return
	}

	var files []session.File
	resp := uploadResponse{Documents: []*session.Document{}, Notices: []string{}}
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			resp.Notices = append(resp.Notices, fault.Notice(h.Filename, fault.Unreadable(h.Filename, err)))
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			resp.Notices = append(resp.Notices, fault.Notice(h.Filename, fault.Unreadable(h.Filename, err)))
			continue
		}
		files = append(files, session.File{Name: h.Filename, Data: data})
	}

	for _, res := range w.docs.LoadMany(files) {
		if res.Err != nil {
			resp.Notices = append(resp.Notices, res.Notice())
			continue
		}
		resp.Documents = append(resp.Documents, res.Document)
	}
	writeJSON(wr, http.StatusOK, resp)
}

func (w *Web) handleRemove(wr http.ResponseWriter, r *http.Request) {
	if err := w.docs.RemoveDocument(chi.URLParam(r, "id")); err != nil {
		writeFault(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *Web) handlePreview(wr http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeError(wr, http.StatusBadRequest, err.Error())
		return
	}
	opts := render.Options{}
	if dpi, err := strconv.Atoi(r.URL.Query().Get("dpi")); err == nil {
		opts.DPI = dpi
	}
	img, err := w.docs.Preview(chi.URLParam(r, "id"), page, opts)
	if err != nil {
		writeFault(wr, err)
		return
	}
	wr.Header().Set("Content-Type", "image/jpeg")
	wr.Header().Set("Cache-Control", "private, max-age=3600")
	wr.Header().Set("Content-Length", strconv.Itoa(len(img.JPEG)))
	_, _ = wr.Write(img.JPEG)
}

type cycleResponse struct {
	Page   int          `json:"page"`
	Action pages.Action `json:"action"`
	Label  string       `json:"label"`
}

func (w *Web) handleCycle(wr http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeError(wr, http.StatusBadRequest, err.Error())
		return
	}
	a, err := w.docs.Cycle(chi.URLParam(r, "id"), page)
	if err != nil {
		writeFault(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, cycleResponse{Page: page, Action: a, Label: a.Label()})
}

func (w *Web) handleDownload(wr http.ResponseWriter, r *http.Request) {
	ex, err := w.docs.Export(chi.URLParam(r, "id"))
	if err != nil {
		writeFault(wr, err)
		return
	}
	wr.Header().Set("Content-Type", "application/pdf")
	wr.Header().Set("Content-Disposition", attachment(ex.Name))
	wr.Header().Set("Content-Length", strconv.Itoa(len(ex.Data)))
	_, _ = wr.Write(ex.Data)
}

// handleDownloadAll streams a zip with one entry per export. Failed documents are
// listed in errors.txt instead of aborting the archive.
func (w *Web) handleDownloadAll(wr http.ResponseWriter, r *http.Request) {
	results := w.docs.ExportAll()
	if len(results) == 0 {
		writeError(wr, http.StatusNotFound, "no documents loaded")
		return
	}

	wr.Header().Set("Content-Type", "application/zip")
	wr.Header().Set("Content-Disposition", attachment("pagetrim-"+time.Now().Format("20060102-150405")+".zip"))

	zw := zip.NewWriter(wr)
	used := map[string]int{}
	var failures []string
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, fault.Notice(res.Source, res.Err))
			continue
		}
		name := rebuild.UniqueName(used, res.Export.Name)
		f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("zip entry")
			return
		}
		if _, err := f.Write(res.Export.Data); err != nil {
			log.Error().Err(err).Str("file", name).Msg("zip write")
			return
		}
	}
	if len(failures) > 0 {
		f, err := zw.Create("errors.txt")
		if err == nil {
			_, _ = io.WriteString(f, strings.Join(failures, "\n")+"\n")
		}
	}
	if err := zw.Close(); err != nil {
		log.Error().Err(err).Msg("zip close")
	}
}

func pageParam(r *http.Request) (int, error) {
	p, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || p < 1 {
		return 0, fmt.Errorf("invalid page %q", chi.URLParam(r, "page"))
	}
	return p, nil
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrInvalidInputType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, fault.ErrSourceUnreadable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeFault(wr http.ResponseWriter, err error) {
	writeJSON(wr, statusFor(err), map[string]string{"error": err.Error(), "kind": fault.Kind(err)})
}

func writeError(wr http.ResponseWriter, status int, msg string) {
	writeJSON(wr, status, map[string]string{"error": msg})
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	_ = json.NewEncoder(wr).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(wr, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
