package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Document snapshots carry full spline data, so the default is
// generous.
var maxBodyBytes int64 = 8 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 8 << 20
		return
	}
	maxBodyBytes = n
}

// generateTimeout controls the maximum duration a /generate or /bake request
// may run before timing out. Zero means no additional timeout beyond
// server/connection timeouts.
var generateTimeout = int64(0) // seconds

// SetGenerateTimeoutSeconds sets the generation timeout in seconds (0 disables).
func SetGenerateTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	generateTimeout = sec
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
