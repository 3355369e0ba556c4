package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/radlab-io/authgate/api/handler"
	"github.com/radlab-io/authgate/api/service"
	"github.com/radlab-io/authgate/credentialcodec"
	"github.com/radlab-io/authgate/pathauthz"
	"github.com/radlab-io/authgate/revocation"
	"github.com/radlab-io/authgate/verificationcache"
	"go.uber.org/zap"
)

// API is the ops surface of the gateway. Unlike the edge interceptor it runs
// in the authoritative execution context, so access checks here include the
// revocation cross-check against the identity store.
type API struct {
	ApiPort         int
	PolicyManager   pathauthz.PolicyManager
	Table           pathauthz.Matcher
	Codec           *credentialcodec.Codec
	RevocationCheck *revocation.Checker
	Store           *revocation.MemoryStore
	Cache           *verificationcache.Cache
	Logger          *zap.Logger
}

func (api *API) Run() error {
	apiService := service.NewService(api.PolicyManager, api.Table, api.Codec, api.RevocationCheck, api.Store, api.Cache, api.Logger)
	apiHandlers := handler.NewHandlers(apiService, api.Logger)

	router := mux.NewRouter()
	router.HandleFunc("/authorization-policy", apiHandlers.GetAuthorizationPolicyHandler).Methods("GET")
	router.HandleFunc("/check-access", apiHandlers.CheckAccessHandler).Methods("POST")
	router.HandleFunc("/revoke", apiHandlers.RevokeHandler).Methods("POST")

	srv := &http.Server{
		Handler:      router,
		Addr:         fmt.Sprintf("0.0.0.0:%d", api.ApiPort),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	api.Logger.Info("Starting HTTP server...", zap.Int("port", api.ApiPort))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		api.Logger.Error("Failed to start the http server", zap.Error(err))

		return fmt.Errorf("failed to start the http server :%w", err)
	}

	return nil
}
