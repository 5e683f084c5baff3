package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/backend"
	"github.com/wolfeidau/lightning/config"
)

// StaticHandler serves files from a document root. The matched prefix of
// the request path is replaced by the configured root, which is resolved
// against the working directory.
//
// Properties:
//
//	root      required, document root
//	etag      optional, add a BLAKE3 ETag header (default off)
//	gzip      optional, gzip bodies for clients that accept it (default off)
//	max_size  optional, largest file served in bytes, 0 for no limit (default 0)
type StaticHandler struct {
	prefix  string
	workDir string
	files   backend.Backend
	etag    bool
	gzip    bool
	maxSize int64
	logger  *slog.Logger
}

func (h *StaticHandler) Init(uriPrefix string, props config.Properties) error {
	root, ok := props.Lookup("root")
	if !ok || root == "" {
		return fmt.Errorf("%w: root", ErrMissingProperty)
	}

	var err error
	if h.etag, err = config.Bool(props, false, "etag"); err != nil {
		return err
	}
	if h.gzip, err = config.Bool(props, false, "gzip"); err != nil {
		return err
	}
	maxSize, err := config.Int(props, 0, "max_size")
	if err != nil {
		return err
	}
	if maxSize < 0 {
		return fmt.Errorf("invalid max_size %d", maxSize)
	}
	h.maxSize = int64(maxSize)

	wd, err := workingDir(h.workDir)
	if err != nil {
		return err
	}
	fs, err := backend.NewFilesystem(filepath.Join(wd, root))
	if err != nil {
		return fmt.Errorf("creating static backend: %w", err)
	}

	h.prefix = uriPrefix
	h.files = backend.NewInstrumentedBackend(fs, "static")
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "handler", "handler", TypeStatic, "prefix", uriPrefix)
	h.logger.Debug("static root configured", "root", fs.Root())
	return nil
}

func (h *StaticHandler) HandleRequest(ctx context.Context, req *lightning.Request) (Status, *lightning.Response) {
	uri := req.URI()
	if uri == "" || uri[0] != '/' || strings.Contains(uri, "..") {
		h.logger.DebugContext(ctx, "rejecting request path", "uri", uri)
		return BadRequest, BadRequestResponse()
	}

	p, _, _ := strings.Cut(uri, "?")
	p, _, _ = strings.Cut(p, "#")
	decoded, err := url.PathUnescape(p)
	if err != nil || strings.Contains(decoded, "..") || strings.ContainsRune(decoded, 0) {
		h.logger.DebugContext(ctx, "rejecting decoded request path", "uri", uri)
		return BadRequest, BadRequestResponse()
	}

	contentType := ExtensionToType(extension(decoded))
	if contentType == "" {
		h.logger.DebugContext(ctx, "no content type for request path", "path", decoded)
		return NotFound, NotFoundResponse()
	}

	key := decoded
	if h.prefix != "/" {
		key = strings.TrimPrefix(decoded, h.prefix)
	}

	body, err := h.read(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrNotFound), errors.Is(err, backend.ErrInvalidKey):
			h.logger.DebugContext(ctx, "file not found", "key", key)
		case errors.Is(err, ErrFileTooLarge):
			h.logger.WarnContext(ctx, "file exceeds max_size", "key", key, "max_size", h.maxSize)
		default:
			h.logger.WarnContext(ctx, "reading file failed", "key", key, "error", err)
		}
		return NotFound, NotFoundResponse()
	}

	resp := lightning.NewResponse()
	resp.SetStatus(lightning.StatusOK)
	resp.AddHeader("Content-Type", contentType)
	if h.etag {
		resp.AddHeader("ETag", lightning.HashBytes(body).ETag())
	}
	if h.gzip && acceptsGzip(req) {
		compressed, err := gzipBytes(body)
		if err != nil {
			h.logger.WarnContext(ctx, "compressing file failed", "key", key, "error", err)
		} else {
			resp.AddHeader("Content-Encoding", "gzip")
			body = compressed
		}
	}
	resp.SetBody(body)
	return OK, resp
}

func (h *StaticHandler) read(ctx context.Context, key string) ([]byte, error) {
	if h.maxSize > 0 {
		size, err := h.files.Size(ctx, key)
		if err != nil {
			return nil, err
		}
		if size > h.maxSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
		}
	}

	rc, err := h.files.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return body, nil
}

func acceptsGzip(req *lightning.Request) bool {
	ae, ok := req.Header("Accept-Encoding")
	if !ok {
		return false
	}
	for part := range strings.SplitSeq(ae, ",") {
		coding, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(coding, "gzip") {
			return true
		}
	}
	return false
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
