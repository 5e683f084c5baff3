package handler

import (
	"context"
	"log/slog"

	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
)

// EchoHandler answers with the request exactly as it was received.
type EchoHandler struct {
	prefix string
	logger *slog.Logger
}

func (h *EchoHandler) Init(uriPrefix string, _ config.Properties) error {
	h.prefix = uriPrefix
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "handler", "handler", TypeEcho, "prefix", uriPrefix)
	return nil
}

func (h *EchoHandler) HandleRequest(ctx context.Context, req *lightning.Request) (Status, *lightning.Response) {
	h.logger.DebugContext(ctx, "echoing request", "bytes", len(req.Raw()))

	resp := lightning.NewResponse()
	resp.SetStatus(lightning.StatusOK)
	resp.AddHeader("Content-Type", "text/plain")
	resp.SetBody(req.Raw())
	return OK, resp
}
