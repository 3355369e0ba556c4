package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Interceptor fronts the application as a reverse proxy and runs every
// inbound request through the gateway decision before forwarding.
type Interceptor struct {
	servicePort int
	proxyPort   int
	proxy       *httputil.ReverseProxy
	gateway     *Gateway
	logger      *zap.Logger
}

func NewInterceptor(servicePort, proxyPort int, gateway *Gateway, logger *zap.Logger) (*Interceptor, error) {
	originalAppURL := "http://localhost:" + strconv.Itoa(servicePort)

	proxy, err := setupProxy(originalAppURL)
	if err != nil {
		return nil, err
	}

	return &Interceptor{
		servicePort: servicePort,
		proxyPort:   proxyPort,
		proxy:       proxy,
		gateway:     gateway,
		logger:      logger,
	}, nil
}

func setupProxy(target string) (*httputil.ReverseProxy, error) {
	url, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(url)
	proxy.Director = func(req *http.Request) {
		req.Header.Add("X-Forwarded-Host", req.Host)
		req.Host = url.Host
		req.URL.Scheme = url.Scheme
		req.URL.Host = url.Host
		req.URL.Path = url.Path + req.URL.Path
	}

	return proxy, nil
}

func (i *Interceptor) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/", i.gateway.Middleware(i.proxy))

	listenAddress := ":" + strconv.Itoa(i.proxyPort)
	server := &http.Server{
		Addr:         listenAddress,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	i.logger.Info("Starting gateway interceptor server...", zap.Int("port", i.proxyPort))

	if err := server.ListenAndServe(); err != nil {
		i.logger.Error("Failed to start gateway interceptor.", zap.String("listenAddress", listenAddress), zap.Error(err))

		return fmt.Errorf("failed to start gateway interceptor: %w", err)
	}

	return nil
}
