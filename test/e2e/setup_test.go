// Package e2e_test drives the TaxFlow REST API through the Go SDK.
//
// By default the suite boots the full HTTP stack in process on top of the
// in-memory repositories and a miniredis cache. Set TAXFLOW_E2E_BASE_URL
// (and TAXFLOW_E2E_PREPARER_TOKEN / TAXFLOW_E2E_VIEWER_TOKEN) to run it
// against a deployed apiserver instead.
package e2e_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/turtacn/TaxFlow/internal/application/deadline"
	"github.com/turtacn/TaxFlow/internal/application/document"
	"github.com/turtacn/TaxFlow/internal/application/filing"
	"github.com/turtacn/TaxFlow/internal/application/health"
	"github.com/turtacn/TaxFlow/internal/application/plausibility"
	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/auth/oidc"
	redisinfra "github.com/turtacn/TaxFlow/internal/infrastructure/database/redis"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/TaxFlow/internal/interfaces/http"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/handlers"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
	"github.com/turtacn/TaxFlow/internal/testutil"
	"github.com/turtacn/TaxFlow/pkg/client"
)

const e2eSecret = "e2e-secret"

type testEnv struct {
	baseURL  string
	preparer *client.Client
	viewer   *client.Client
	anon     *client.Client
	cleanup  []func()
}

var env *testEnv

func TestMain(m *testing.M) {
	var err error
	env, err = setupTestEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "e2e setup failed: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	for i := len(env.cleanup) - 1; i >= 0; i-- {
		env.cleanup[i]()
	}
	os.Exit(code)
}

func setupTestEnv() (*testEnv, error) {
	e := &testEnv{}
	preparerToken := os.Getenv("TAXFLOW_E2E_PREPARER_TOKEN")
	viewerToken := os.Getenv("TAXFLOW_E2E_VIEWER_TOKEN")

	if base := os.Getenv("TAXFLOW_E2E_BASE_URL"); base != "" {
		e.baseURL = base
	} else {
		base, stop, err := startEmbedded()
		if err != nil {
			return nil, err
		}
		e.baseURL = base
		e.cleanup = append(e.cleanup, stop)
		if preparerToken, err = signToken("e2e-preparer", string(oidc.RolePreparer)); err != nil {
			return nil, err
		}
		if viewerToken, err = signToken("e2e-viewer", string(oidc.RoleViewer)); err != nil {
			return nil, err
		}
	}

	var err error
	opts := []client.Option{client.WithRetryMax(0), client.WithTimeout(10 * time.Second)}
	if e.preparer, err = client.NewClient(e.baseURL, preparerToken, opts...); err != nil {
		return nil, err
	}
	if e.viewer, err = client.NewClient(e.baseURL, viewerToken, opts...); err != nil {
		return nil, err
	}
	if e.anon, err = client.NewClient(e.baseURL, "", opts...); err != nil {
		return nil, err
	}
	return e, nil
}

// startEmbedded wires the services the way cmd/apiserver does, minus
// Postgres, Kafka and MinIO.
func startEmbedded() (string, func(), error) {
	log := logging.NewNopLogger()

	mr, err := miniredis.Run()
	if err != nil {
		return "", nil, err
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	rc := redisinfra.NewClientFrom(rdb, "e2e:", log)
	cache := redisinfra.NewCache(rc, log)
	locker := redisinfra.NewLocker(rc, log)

	store := testutil.NewSubmissionStore(nil)
	templates := testutil.NewTemplateStore()
	certs := &testutil.CertificateStore{}

	plausSvc := plausibility.NewService(store, plausibility.DefaultRegistry(plausibility.DefaultConstants()),
		plausibility.ServiceConfig{}, log)
	filingSvc := filing.NewService(store, store.Audit(), plausSvc, filing.ServiceConfig{}, log)
	docSvc := document.NewService(store, document.NewResolver(templates, nil, log), document.ServiceConfig{}, log,
		document.WithLocker(locker))
	healthSvc := health.NewService(store, store.Audit(), certs, templates, health.ServiceConfig{}, log, health.WithCache(cache))
	deadlineSvc, err := deadline.NewService(deadline.DefaultDefinitions(), store, deadline.ServiceConfig{HorizonDays: 400}, log,
		deadline.WithCache(cache))
	if err != nil {
		mr.Close()
		return "", nil, err
	}

	validator, err := middleware.NewHMACValidator(config.AuthConfig{JWTSecret: e2eSecret})
	if err != nil {
		mr.Close()
		return "", nil, err
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		SubmissionHandler: handlers.NewSubmissionHandler(filingSvc, docSvc, plausSvc, log),
		HealthHandler: handlers.NewHealthHandler(healthSvc, map[string]handlers.Probe{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, log),
		DeadlineHandler: handlers.NewDeadlineHandler(deadlineSvc, log),
		AuthMiddleware:  middleware.NewAuthMiddleware(validator, log),
		Authorizer:      oidc.NewEnforcer(nil, log).Middleware,
		Logger:          log,
	})
	srv := httptest.NewServer(router)
	return srv.URL, func() {
		srv.Close()
		_ = rdb.Close()
		mr.Close()
	}, nil
}

func signToken(subject string, roles ...string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(e2eSecret))
}
