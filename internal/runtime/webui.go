package runtime

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/runtimeclient/internal/runtime/jsoncodec"
)

// StartWebUIServer registers the processor introspection API when enabled.
func (c *Client) StartWebUIServer() {
	if !c.Conf.WebUIEnabled {
		return
	}
	port := c.Conf.WebUIPort
	if port == 0 {
		port = 8081
	}
	c.RegisterHTTPHandler(port, "/api/processors", http.HandlerFunc(c.handleGetProcessors))
}

func (c *Client) startMetricsServer() {
	if !c.Conf.MetricsEnabled || c.Conf.MetricsPort == 0 {
		return
	}
	handler := promhttp.Handler()
	if gatherer, ok := c.registerer.(prometheus.Gatherer); ok {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	c.RegisterHTTPHandler(c.Conf.MetricsPort, "/metrics", handler)
}

func (c *Client) handleGetProcessors(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if c.Conf != nil && len(c.Conf.WebUICORSAllowedOrigins) > 0 {
		if allowed := c.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	body, err := jsoncodec.Marshal(c.Processors())
	if err != nil {
		c.Logger.Error("Failed to encode processors", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (c *Client) getAllowedCORSOrigin(requestOrigin string) string {
	if c.Conf == nil {
		return ""
	}
	for _, allowed := range c.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
