package dispatcher

import (
	"net/http"
	"strings"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

// applyCORS is the extension point spec §4.4 step 3 calls for: the
// core supplies a pass-through stub that honors a Router's declared
// CORSPolicy directly, with no external policy engine consulted.
func applyCORS(w http.ResponseWriter, r *http.Request, policy config.CORSPolicy) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if len(policy.AllowOrigins) > 0 {
		if !originAllowed(origin, policy.AllowOrigins) {
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	methods := policy.AllowMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))

	headers := policy.AllowHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Mcp-Session-Id", "Accept"}
	}
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
