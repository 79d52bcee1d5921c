package constants

// Route constants
const (
	WebhookZaloRoute = "/webhook/zalo"
	HealthRoute      = "/health"
	APIRoute         = "/api"
	APIv1Route       = "/v1"
	MetricsRoute     = "/metrics"
	DocsBasePath     = "/docs/api/"
	DocsVersionPath  = "v1"
)
