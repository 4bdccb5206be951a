package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Route liga um prefixo público (/api/markets) a um serviço interno
type Route struct {
	Prefix string
	Target string
}

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", to)
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

// Handler monta o mux do gateway: cada prefixo é removido antes do repasse
func Handler(log *zap.Logger, routes ...Route) (http.Handler, error) {
	mux := http.NewServeMux()
	for _, rt := range routes {
		proxy, err := rp(rt.Target)
		if err != nil {
			return nil, err
		}
		prefix := strings.TrimSuffix(rt.Prefix, "/")
		target := rt.Target
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("upstream failed", zap.String("prefix", prefix), zap.String("target", target), zap.Error(err))
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		}
		mux.Handle(prefix+"/", http.StripPrefix(prefix, proxy))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return withCORS(mux), nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Caller")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
