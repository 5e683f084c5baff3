package handler

import (
	"context"

	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
)

const notFoundHTML = "<html>\n<head>\n" +
	"<title>Not Found</title>\n" +
	"<h1>404 Page Not Found</h1>\n" +
	"\n</head>\n</html>"

const badRequestHTML = "<html>\n<head>\n" +
	"<title>Bad Request</title>\n" +
	"<h1>400 Bad Request</h1>\n" +
	"\n</head>\n</html>"

const badGatewayHTML = "<html>\n<head>\n" +
	"<title>Bad Gateway</title>\n" +
	"<h1>502 Bad Gateway</h1>\n" +
	"\n</head>\n</html>"

// NotFoundHandler always answers 404 with a fixed HTML page. The router
// also keeps one outside the routing table as the last-resort fallback.
type NotFoundHandler struct{}

func (h *NotFoundHandler) Init(string, config.Properties) error { return nil }

func (h *NotFoundHandler) HandleRequest(context.Context, *lightning.Request) (Status, *lightning.Response) {
	return NotFound, NotFoundResponse()
}

// NotFoundResponse builds the fixed 404 response.
func NotFoundResponse() *lightning.Response {
	return htmlResponse(lightning.StatusNotFound, notFoundHTML)
}

// BadRequestResponse builds the fixed 400 response.
func BadRequestResponse() *lightning.Response {
	return htmlResponse(lightning.StatusBadRequest, badRequestHTML)
}

func badGatewayResponse() *lightning.Response {
	return htmlResponse(lightning.StatusBadGateway, badGatewayHTML)
}

func htmlResponse(code lightning.StatusCode, body string) *lightning.Response {
	resp := lightning.NewResponse()
	resp.SetStatus(code)
	resp.AddHeader("Content-Type", "text/html")
	resp.SetBody([]byte(body))
	return resp
}
