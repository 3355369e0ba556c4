package main

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/radlab-io/authgate/api"
	"github.com/radlab-io/authgate/config"
	"github.com/radlab-io/authgate/configsync"
	"github.com/radlab-io/authgate/credentialcodec"
	"github.com/radlab-io/authgate/gateway"
	"github.com/radlab-io/authgate/loopguard"
	"github.com/radlab-io/authgate/pathauthz"
	"github.com/radlab-io/authgate/revocation"
	"github.com/radlab-io/authgate/trustbundle"
	"github.com/radlab-io/authgate/verificationcache"
	"go.uber.org/zap"
)

const SERVICE_NAME = "authgate"

type App struct {
	Config  *config.Config
	Table   *pathauthz.Table
	Codec   *credentialcodec.Codec
	Cache   *verificationcache.Cache
	Guard   *loopguard.Guard
	Gateway *gateway.Gateway
	Logger  *zap.Logger
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Cannot initialize Zap logger: %v.", err)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Error syncing logger: %v", err)
		}
	}()

	appConfig := config.GetAppConfig()

	policy, err := config.LoadPolicy(appConfig.PolicyFile)
	if err != nil {
		logger.Fatal("Error loading authorization policy:", zap.Error(err))
	}

	table, err := pathauthz.NewTable(policy)
	if err != nil {
		logger.Fatal("Error building authorization table:", zap.Error(err))
	}

	var bundle *trustbundle.Manager
	if appConfig.IdentityProviderUrl != nil {
		bundle = trustbundle.NewManager(*appConfig.IdentityProviderUrl)
	}

	codec := credentialcodec.NewCodec(
		[]byte(appConfig.AuthSecret),
		appConfig.Issuer,
		appConfig.CredentialValidity,
		appConfig.VerifyTimeout,
		bundle,
	)

	cache := verificationcache.NewCache(appConfig.CacheTTL, appConfig.UnverifiedCacheTTL, appConfig.CacheSweepInterval)
	guard := loopguard.NewGuard(appConfig.GuardThreshold, appConfig.GuardCooldown)

	gw := gateway.NewGateway(codec, credentialcodec.DecodeUnverified, cache, guard, table, gateway.Options{
		CookieName:    appConfig.CookieName,
		APIPrefix:     appConfig.ApiPrefix,
		LoginPath:     appConfig.LoginPath,
		WaitingPath:   appConfig.WaitingPath,
		DashboardPath: appConfig.DashboardPath,
		DevMode:       appConfig.DevMode,
	}, logger)

	app := &App{
		Config:  appConfig,
		Table:   table,
		Codec:   codec,
		Cache:   cache,
		Guard:   guard,
		Gateway: gw,
		Logger:  logger,
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}

	if appConfig.ControlPlaneUrl != nil {
		controlPlaneUrl, err := url.Parse(*appConfig.ControlPlaneUrl)
		if err != nil {
			logger.Fatal("Invalid control plane URL:", zap.Error(err))
		}

		syncClient := &configsync.Client{
			ApiPort:           appConfig.ApiPort,
			ControlPlaneUrl:   controlPlaneUrl,
			ServiceName:       SERVICE_NAME,
			PolicyManager:     table,
			HeartbeatInterval: time.Minute,
			HttpClient:        httpClient,
			Logger:            logger,
		}

		if err := syncClient.Start(); err != nil {
			logger.Fatal("Error starting config sync client:", zap.Error(err))
		}
	}

	store := revocation.NewMemoryStore()

	opsAPI := &api.API{
		ApiPort:         appConfig.ApiPort,
		PolicyManager:   app.Table,
		Table:           app.Table,
		Codec:           app.Codec,
		RevocationCheck: revocation.NewChecker(store, logger),
		Store:           store,
		Cache:           app.Cache,
		Logger:          logger,
	}

	go func() {
		if err := opsAPI.Run(); err != nil {
			logger.Fatal("Ops API server exited:", zap.Error(err))
		}
	}()

	interceptor, err := gateway.NewInterceptor(appConfig.ServicePort, appConfig.GatewayPort, app.Gateway, logger)
	if err != nil {
		logger.Fatal("Error creating gateway interceptor:", zap.Error(err))
	}

	if err := interceptor.Start(); err != nil {
		logger.Fatal("Gateway interceptor exited:", zap.Error(err))
	}
}
