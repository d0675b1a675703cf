package deliver

// https://developer.mozilla.org/en-US/docs/Web/HTTP/Range_requests
// https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Range

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aurora-is-near/tarnav/src/config"
	"github.com/aurora-is-near/tarnav/src/tarindex"
	"github.com/aurora-is-near/tarnav/src/ustar"
	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	archiveSuffix = ".tar"
	copyBufSize   = 32 * 1024
)

// catalog is the cached entry list of one archive file. It is only valid while the file keeps
// the size and modification time it had when the catalog was built.
type catalog struct {
	size    int64
	modTime time.Time
	entries []ustar.Entry
}

// TarHandler serves listings and file contents of the archives in ArchiveDirectory.
type TarHandler struct {
	ArchiveDirectory string
	PathMod          tarindex.PathMod
	MaxLinkDepth     int

	cache    *lru.Cache[string, *catalog]
	router   *mux.Router
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	bytes    prometheus.Counter
}

// NewTarHandler creates a handler configured by cfg.
func NewTarHandler(cfg *config.Config) (*TarHandler, error) {
	cache, err := lru.New[string, *catalog](cfg.IndexCache)
	if err != nil {
		return nil, err
	}
	handler := &TarHandler{
		ArchiveDirectory: cfg.ArchiveDir,
		PathMod:          tarindex.PathMod{BaseDir: "/", ModDir: cfg.Root},
		MaxLinkDepth:     cfg.MaxLinkDepth,
		cache:            cache,
		registry:         prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarnav",
			Name:      "requests_total",
			Help:      "Archive requests by operation and status code.",
		}, []string{"op", "code"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tarnav",
			Name:      "content_bytes_total",
			Help:      "File content bytes served.",
		}),
	}
	handler.registry.MustRegister(handler.requests, handler.bytes)

	r := mux.NewRouter()
	sub := r
	if prefix := strings.TrimSuffix(cfg.Prefix, "/"); prefix != "" {
		sub = r.PathPrefix(prefix).Subrouter()
	}
	sub.Handle("/metrics", promhttp.HandlerFor(handler.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	sub.HandleFunc("/{archive}/validate", handler.validate).Methods(http.MethodGet)
	sub.HandleFunc("/{archive}/ls/{path:.*}", handler.list).Methods(http.MethodGet)
	sub.HandleFunc("/{archive}/stat/{path:.*}", handler.stat).Methods(http.MethodGet)
	sub.HandleFunc("/{archive}/raw/{path:.*}", handler.raw).Methods(http.MethodGet, http.MethodHead)
	handler.router = r
	return handler, nil
}

func (handler *TarHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler.router.ServeHTTP(w, r)
}

func (handler *TarHandler) archivePath(name string) string {
	return filepath.Join(handler.ArchiveDirectory, filepath.Base(name)+archiveSuffix)
}

// entryPath maps the path part of a request to an entry name.
func (handler *TarHandler) entryPath(r *http.Request) string {
	return handler.PathMod.FixPath("/" + mux.Vars(r)["path"])
}

// openArchive opens the archive named in the request and returns a Reader backed by a cached
// catalog. The caller closes the file.
func (handler *TarHandler) openArchive(r *http.Request) (*os.File, *ustar.Reader, error) {
	name := handler.archivePath(mux.Vars(r)["archive"])
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("archive %s: %w", mux.Vars(r)["archive"], errdefs.ErrNotFound)
		}
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	opts := []ustar.Option{ustar.OptMaxLinkDepth(handler.MaxLinkDepth)}
	if c, ok := handler.cache.Get(name); ok && c.size == stat.Size() && c.modTime.Equal(stat.ModTime()) {
		return f, ustar.NewReader(f, append(opts, ustar.OptIndex(c.entries))...), nil
	}
	reader := ustar.NewReader(f, opts...)
	if _, err := reader.Validate(); err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	entries, err := reader.Entries()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	handler.cache.Add(name, &catalog{size: stat.Size(), modTime: stat.ModTime(), entries: entries})
	log.G(r.Context()).WithFields(log.Fields{
		"archive": name,
		"entries": len(entries),
	}).Debug("archive catalog cached")
	return f, ustar.NewReader(f, append(opts, ustar.OptIndex(entries))...), nil
}

func statusFor(err error) int {
	switch {
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsOutOfRange(err):
		return http.StatusRequestedRangeNotSatisfiable
	case errdefs.IsDataLoss(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// missing turns a wrong-type error into not found when nothing exists at path.
func missing(reader *ustar.Reader, path string, err error) error {
	kind := ustar.KindOf(err)
	if kind != ustar.NotADirectory && kind != ustar.NotAFile {
		return err
	}
	if ok, existsErr := reader.Exists(path); existsErr == nil && !ok {
		if ok, _ = reader.Exists(path + "/"); ok {
			return err
		}
		return fmt.Errorf("%s: %w", path, ustar.ErrNotFound)
	}
	return err
}

func (handler *TarHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	handler.requests.WithLabelValues(op, strconv.Itoa(code)).Inc()
	entry := log.G(r.Context()).WithError(err).WithFields(log.Fields{
		"op":   op,
		"path": r.URL.Path,
	})
	if code == http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	http.Error(w, err.Error(), code)
}

func (handler *TarHandler) writeJSON(w http.ResponseWriter, r *http.Request, op string, v interface{}) {
	handler.requests.WithLabelValues(op, strconv.Itoa(http.StatusOK)).Inc()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.G(r.Context()).WithError(err).Warn("writing response")
	}
}

func (handler *TarHandler) validate(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(handler.archivePath(mux.Vars(r)["archive"]))
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("archive %s: %w", mux.Vars(r)["archive"], errdefs.ErrNotFound)
		}
		handler.fail(w, r, "validate", err)
		return
	}
	defer func() { _ = f.Close() }()
	count, err := ustar.NewReader(f).Validate()
	if err != nil {
		handler.fail(w, r, "validate", err)
		return
	}
	handler.writeJSON(w, r, "validate", map[string]int{"headers": count})
}

// ListResponse is the body of a directory listing.
type ListResponse struct {
	Entries   []string `json:"entries"`
	Truncated bool     `json:"truncated"`
}

func (handler *TarHandler) list(w http.ResponseWriter, r *http.Request) {
	capacity := -1
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			handler.fail(w, r, "ls", fmt.Errorf("max %q: %w", v, errdefs.ErrInvalidArgument))
			return
		}
		capacity = n
	}
	f, reader, err := handler.openArchive(r)
	if err != nil {
		handler.fail(w, r, "ls", err)
		return
	}
	defer func() { _ = f.Close() }()
	path := handler.entryPath(r)
	entries, truncated, err := reader.List(path, capacity)
	if ustar.KindOf(err) == ustar.NotADirectory && path != "" && !strings.HasSuffix(path, "/") {
		// Directory entries carry a trailing slash that request paths usually omit.
		if e2, t2, err2 := reader.List(path+"/", capacity); err2 == nil {
			entries, truncated, err = e2, t2, nil
		}
	}
	if err != nil {
		handler.fail(w, r, "ls", missing(reader, path, err))
		return
	}
	handler.writeJSON(w, r, "ls", ListResponse{Entries: entries, Truncated: truncated})
}

func (handler *TarHandler) stat(w http.ResponseWriter, r *http.Request) {
	f, reader, err := handler.openArchive(r)
	if err != nil {
		handler.fail(w, r, "stat", err)
		return
	}
	defer func() { _ = f.Close() }()
	e, err := reader.Stat(handler.entryPath(r))
	if err != nil {
		handler.fail(w, r, "stat", err)
		return
	}
	handler.writeJSON(w, r, "stat", e)
}

// parseRange reads a single "bytes=start-end" range. end is inclusive and -1 when open.
func parseRange(r string) (start, end int64, ok bool) {
	if pos := strings.Index(r, "="); pos < 0 || strings.TrimSpace(r[:pos]) != "bytes" {
		return 0, 0, false
	} else {
		r = r[pos+1:]
	}
	if strings.Contains(r, ",") {
		return 0, 0, false
	}
	pos := strings.Index(r, "-")
	if pos < 0 {
		return 0, 0, false
	}
	bs, es := strings.TrimSpace(r[:pos]), strings.TrimSpace(r[pos+1:])
	start, err := strconv.ParseInt(bs, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	if es == "" {
		return start, -1, true
	}
	end, err = strconv.ParseInt(es, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

func (handler *TarHandler) raw(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Accept-Ranges", "bytes")
	start, end := int64(0), int64(-1)
	partial := false
	if v := r.Header.Get("Range"); v != "" {
		var ok bool
		if start, end, ok = parseRange(v); !ok {
			handler.fail(w, r, "raw", fmt.Errorf("range %q: %w", v, errdefs.ErrInvalidArgument))
			return
		}
		partial = true
	} else if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			handler.fail(w, r, "raw", fmt.Errorf("offset %q: %w", v, errdefs.ErrInvalidArgument))
			return
		}
		start = n
	}
	f, reader, err := handler.openArchive(r)
	if err != nil {
		handler.fail(w, r, "raw", err)
		return
	}
	defer func() { _ = f.Close() }()
	path := handler.entryPath(r)

	buf := make([]byte, copyBufSize)
	n, remaining, err := reader.Read(path, start, buf)
	if err != nil {
		err = missing(reader, path, err)
		if ustar.KindOf(err) == ustar.OffsetOutOfRange {
			if e, resolveErr := reader.Resolve(path); resolveErr == nil {
				w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", e.Size))
			}
		}
		handler.fail(w, r, "raw", err)
		return
	}
	size := start + int64(n) + remaining
	if partial && start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		handler.fail(w, r, "raw", fmt.Errorf("range start %d of %d bytes: %w", start, size, errdefs.ErrOutOfRange))
		return
	}
	length := size - start
	if end >= 0 && end < size-1 {
		length = end + 1 - start
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	code := http.StatusOK
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, size))
		code = http.StatusPartialContent
	}
	w.WriteHeader(code)
	handler.requests.WithLabelValues("raw", strconv.Itoa(code)).Inc()
	if r.Method == http.MethodHead {
		return
	}

	offset := start
	for left := length; left > 0; {
		chunk := int64(n)
		if chunk > left {
			chunk = left
		}
		written, err := w.Write(buf[:chunk])
		handler.bytes.Add(float64(written))
		if err != nil {
			log.G(r.Context()).WithError(err).WithField("path", path).Debug("client went away")
			return
		}
		left -= chunk
		offset += chunk
		if left == 0 {
			break
		}
		if n, _, err = reader.Read(path, offset, buf); err != nil {
			log.G(r.Context()).WithError(err).WithField("path", path).Error("read failed after headers were sent")
			return
		}
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, cfg *config.Config) error {
	handler, err := NewTarHandler(cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errC := make(chan error, 1)
	go func() {
		errC <- srv.ListenAndServe()
	}()
	log.G(ctx).WithFields(log.Fields{
		"listen":   cfg.Listen,
		"archives": cfg.ArchiveDir,
		"prefix":   cfg.Prefix,
	}).Info("serving archives")
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}
	log.G(ctx).Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
