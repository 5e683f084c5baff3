package handler

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
	"github.com/wolfeidau/lightning/stats"
)

const (
	statusTableHeader = "Count | URL Requested                                   | Status Code\n"
	statusTableRule   = "---------------------------------------------------------------------\n"
)

// StatusHandler renders the configured routes and the per (URL, status)
// request counts as plain text.
type StatusHandler struct {
	stats StatsReader
}

func (h *StatusHandler) Init(string, config.Properties) error { return nil }

// SetStats implements WantsStats.
func (h *StatusHandler) SetStats(s StatsReader) {
	h.stats = s
}

func (h *StatusHandler) HandleRequest(context.Context, *lightning.Request) (Status, *lightning.Response) {
	var routes map[string]string
	var calls map[stats.Call]int
	if h.stats != nil {
		routes = h.stats.AllRoutes()
		calls = h.stats.HandlerCallDistribution()
	}

	resp := lightning.NewResponse()
	resp.SetStatus(lightning.StatusOK)
	resp.AddHeader("Content-Type", "text/plain")
	resp.SetBody([]byte(renderStatus(routes, calls)))
	return OK, resp
}

func renderStatus(routes map[string]string, calls map[stats.Call]int) string {
	var b strings.Builder

	b.WriteString("Available Handlers\n")
	prefixes := make([]string, 0, len(routes))
	for prefix := range routes {
		prefixes = append(prefixes, prefix)
	}
	slices.Sort(prefixes)
	for _, prefix := range prefixes {
		b.WriteString(prefix + " <--- " + routes[prefix] + "\n")
	}
	b.WriteString("\n")

	b.WriteString(statusTableHeader)
	b.WriteString(statusTableRule)
	keys := make([]stats.Call, 0, len(calls))
	for call := range calls {
		keys = append(keys, call)
	}
	slices.SortFunc(keys, func(a, b stats.Call) int {
		return cmp.Or(cmp.Compare(a.URL, b.URL), cmp.Compare(a.Code, b.Code))
	})
	for _, call := range keys {
		fmt.Fprintf(&b, "%-6s| %-48s| %-10s\n", strconv.Itoa(calls[call]), call.URL, strconv.Itoa(call.Code))
	}
	return b.String()
}
