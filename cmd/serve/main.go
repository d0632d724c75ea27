/******************************************************************************
*
*  Copyright 2024 SAP SE
*
*  Licensed under the Apache License, Version 2.0 (the "License");
*  you may not use this file except in compliance with the License.
*  You may obtain a copy of the License at
*
*      http://www.apache.org/licenses/LICENSE-2.0
*
*  Unless required by applicable law or agreed to in writing, software
*  distributed under the License is distributed on an "AS IS" BASIS,
*  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
*  See the License for the specific language governing permissions and
*  limitations under the License.
*
******************************************************************************/

package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpapi/pprofapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/sapcc/restmachine/internal/todoapi"
	rmfasthttp "github.com/sapcc/restmachine/pkg/adapters/fasthttp"
	"github.com/sapcc/restmachine/pkg/adapters/nethttp"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// AddCommandTo mounts this command into the command hierarchy.
func AddCommandTo(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the example todo API.",
		Long:  "Run the example todo API. Configuration is read from environment variables as described in README.md.",
		Args:  cobra.NoArgs,
		Run:   run,
	}
	parent.AddCommand(cmd)
}

func run(cmd *cobra.Command, args []string) {
	_, _ = cmd, args

	cfg := todoapi.ParseConfiguration()
	ctx := httpext.ContextWithSIGINT(cmd.Context(), 10*time.Second)

	app := todoapi.NewApplication(cfg, time.Now)
	must.Succeed(app.Startup())
	defer app.Shutdown()

	listenAddress := osext.GetenvOrDefault("RESTMACHINE_LISTEN_ADDRESS", ":8080")
	switch server := osext.GetenvOrDefault("RESTMACHINE_SERVER", "nethttp"); server {
	case "nethttp":
		must.Succeed(httpext.ListenAndServeContext(ctx, listenAddress, buildHandler(app)))
	case "fasthttp":
		must.Succeed(serveFastHTTP(ctx, listenAddress, app))
	default:
		logg.Fatal("unknown value for RESTMACHINE_SERVER: %q", server)
	}
}

func buildHandler(app *restmachine.Application) http.Handler {
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
		AllowedHeaders: []string{"Content-Type", "User-Agent", "Authorization", "If-Match", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "Last-Modified", "Location"},
	})
	handler := httpapi.Compose(
		&debugAPI{Enabled: logg.ShowDebug, App: app},
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check:          app.Validate,
		},
		httpapi.WithGlobalMiddleware(reportClientIP),
		httpapi.WithGlobalMiddleware(corsMiddleware.Handler),
		pprofapi.API{IsAuthorized: pprofapi.IsRequestFromLocalhost},
		// This needs to be at the end because it is the fallback match for all
		// paths that are not otherwise defined.
		nethttp.NewHandler(app),
	)
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func serveFastHTTP(ctx context.Context, listenAddress string, app *restmachine.Application) error {
	appHandler := rmfasthttp.NewRequestHandler(app)
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	server := &fasthttp.Server{
		Name: restmachine.Component,
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/metrics" {
				metricsHandler(ctx)
			} else {
				appHandler(ctx)
			}
		},
	}

	go func() {
		<-ctx.Done()
		logg.Info("shutting down fasthttp server...")
		err := server.Shutdown()
		if err != nil {
			logg.Error("while shutting down fasthttp server: %s", err.Error())
		}
	}()

	logg.Info("listening on %s (fasthttp)", listenAddress)
	return server.ListenAndServe(listenAddress)
}

func reportClientIP(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// lets users check whether X-Forwarded-For is transported correctly through reverse proxies
		w.Header().Set("X-Your-Ip", httpext.GetRequesterIPFor(r))
		inner.ServeHTTP(w, r)
	})
}
