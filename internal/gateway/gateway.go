// Package gateway wires the Engine behind an authenticated HTTP front door,
// per SPEC_FULL.md §4.9, adapted from the teacher's internal/server/server.go.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/promptroute/internal/config"
	"github.com/tributary-ai/promptroute/internal/engine"
	gwmiddleware "github.com/tributary-ai/promptroute/internal/middleware"
	"github.com/tributary-ai/promptroute/internal/routeerror"
	"github.com/tributary-ai/promptroute/internal/security"
)

// Gateway is the HTTP front door over one shared Engine instance (spec.md
// §9's "share a single instance of the configuration and of each provider
// client" extended to the HTTP layer itself).
type Gateway struct {
	engine     *engine.Engine
	logger     *logrus.Logger
	httpServer *http.Server
	cfg        *config.Config

	auth        *security.DefaultAuthProvider
	rateLimit   security.RateLimiter
	reqSecurity *security.RequestValidator
	validation  *gwmiddleware.ValidationMiddleware
	audit       *security.AuditLogger
}

// New builds a Gateway. Rate limiting, validation and audit logging are
// each optional, matching the teacher's SecurityMiddlewareConfig.
func New(cfg *config.Config, eng *engine.Engine, logger *logrus.Logger) (*Gateway, error) {
	g := &Gateway{engine: eng, logger: logger, cfg: cfg}

	g.auth = security.NewDefaultAuthProvider(&security.Config{
		APIKeys:       cfg.Auth.APIKeys,
		APIKeyPrompts: cfg.Auth.APIKeyPrompts,
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTExpiry:     cfg.Auth.JWTExpiry,
		RequireAuth:   true,
	}, logger)

	if cfg.RateLimit.Enabled {
		perRoute := make(map[string]security.RouteLimit, len(cfg.RateLimit.PerRouteLimits))
		for route, limit := range cfg.RateLimit.PerRouteLimits {
			perRoute[route] = security.RouteLimit{
				RequestsPerMinute: limit.RequestsPerMinute,
				BurstSize:         limit.BurstSize,
			}
		}
		g.rateLimit = security.NewInMemoryRateLimiter(&security.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   cfg.RateLimit.CleanupInterval,
			PerRouteLimits:    perRoute,
		}, logger)
	}

	if cfg.Security.Enabled {
		rv, err := security.NewRequestValidator(&security.ValidationConfig{
			MaxRequestSize:  cfg.Security.MaxRequestSize,
			AllowedMethods:  cfg.Security.AllowedMethods,
			ContentTypes:    cfg.Security.ContentTypes,
			BlockedPatterns: cfg.Security.BlockedPatterns,
			MaxJSONDepth:    cfg.Security.MaxJSONDepth,
			MaxFieldLength:  cfg.Security.MaxFieldLength,
		}, logger)
		if err != nil {
			return nil, err
		}
		g.reqSecurity = rv
	}

	if cfg.Validation.Enabled {
		vm, err := gwmiddleware.New(gwmiddleware.Config{
			Enabled:  true,
			SpecPath: cfg.Validation.OpenAPISpecPath,
		}, logger)
		if err != nil {
			return nil, err
		}
		g.validation = vm
	}

	if cfg.Audit.Enabled {
		g.audit = security.NewAuditLogger(&security.AuditConfig{
			Enabled:       true,
			BufferSize:    cfg.Audit.BufferSize,
			FlushInterval: cfg.Audit.FlushInterval,
		}, logger)
	}

	return g, nil
}

// Start builds the route table and begins serving. It blocks until the
// server stops (ListenAndServe's own contract).
func (g *Gateway) Start() error {
	router := g.routes()
	g.httpServer = &http.Server{
		Addr:           ":" + g.cfg.Server.Port,
		Handler:        router,
		ReadTimeout:    g.cfg.Server.ReadTimeout,
		WriteTimeout:   g.cfg.Server.WriteTimeout,
		MaxHeaderBytes: g.cfg.Server.MaxHeaderBytes,
	}
	g.logger.WithField("port", g.cfg.Server.Port).Info("starting promptroute gateway")
	return g.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server and its middleware.
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("stopping promptroute gateway")
	if limiter, ok := g.rateLimit.(*security.InMemoryRateLimiter); ok {
		limiter.Stop()
	}
	if g.audit != nil {
		g.audit.Stop()
	}
	return g.httpServer.Shutdown(ctx)
}

// routes builds the middleware chain in the order SPEC_FULL.md §4.9
// specifies: authentication -> rate limiting -> request validation (WAF
// checks, then OpenAPI schema validation) -> audit logging -> handler.
// mux.Router.Use registers outermost-first, so the call order below IS
// the execution order.
func (g *Gateway) routes() *mux.Router {
	r := mux.NewRouter()

	if g.auth != nil {
		r.Use(g.auth.AuthMiddleware())
	}
	if g.rateLimit != nil {
		r.Use(security.RateLimitMiddleware(g.rateLimit, security.DefaultKeyExtractor))
	}
	if g.reqSecurity != nil {
		r.Use(g.reqSecurity.ValidationMiddleware())
	}
	if g.validation != nil {
		r.Use(g.validation.Middleware)
	}
	if g.audit != nil {
		r.Use(g.audit.AuditMiddleware())
	}

	r.HandleFunc("/v1/templates", g.handleGetTemplate).Methods("POST")
	r.HandleFunc("/v1/chat", g.handleChatCompletion).Methods("POST")
	r.HandleFunc("/health", g.handleHealth).Methods("GET")
	r.HandleFunc("/docs/openapi.yaml", g.handleOpenAPISpec).Methods("GET")
	r.HandleFunc("/docs", g.handleDocsUI).Methods("GET")

	return r
}

type getTemplateRequest struct {
	PromptID  string                 `json:"promptId"`
	VariantID string                 `json:"variantId"`
	Variables map[string]interface{} `json:"variables"`
}

func (g *Gateway) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	var req getTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, routeerror.New(routeerror.KindConfiguration, "invalid-json", err.Error(), nil))
		return
	}

	if reqInfo, ok := security.AuditRequestInfoFromContext(r.Context()); ok {
		reqInfo.PromptID, reqInfo.VariantID = req.PromptID, req.VariantID
	}

	if authInfo, ok := security.GetAuthInfo(r.Context()); ok {
		if err := g.auth.Authorize(authInfo, req.PromptID); err != nil {
			writeForbidden(w, err.Error())
			return
		}
	}

	messages, err := g.engine.GetTemplate(r.Context(), engine.GetTemplateParams{
		PromptID:  req.PromptID,
		VariantID: req.VariantID,
		Variables: req.Variables,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

type chatCompletionRequest struct {
	PromptID       string                   `json:"promptId"`
	Variables      map[string]interface{}   `json:"variables"`
	UserID         string                   `json:"userId"`
	Tags           []string                 `json:"tags"`
	MessageHistory []engine.RenderedMessage `json:"messageHistory"`
}

func (g *Gateway) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, routeerror.New(routeerror.KindConfiguration, "invalid-json", err.Error(), nil))
		return
	}

	if reqInfo, ok := security.AuditRequestInfoFromContext(r.Context()); ok {
		reqInfo.PromptID = req.PromptID
	}

	if authInfo, ok := security.GetAuthInfo(r.Context()); ok {
		if err := g.auth.Authorize(authInfo, req.PromptID); err != nil {
			writeForbidden(w, err.Error())
			return
		}
	}

	resp, err := g.engine.ChatCompletion(r.Context(), engine.ChatCompletionParams{
		PromptID:       req.PromptID,
		Variables:      req.Variables,
		MessageHistory: req.MessageHistory,
		UserID:         req.UserID,
		Tags:           req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// writeForbidden reports a caller authenticated successfully but is not
// scoped (security.AuthInfo.AllowedPrompts) to the prompt it targeted.
func writeForbidden(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusForbidden, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "authorization_error",
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps a RouteError's Kind to an HTTP status the way the
// teacher's writeValidationError maps openapi3filter errors (spec.md §4.9):
// configuration-error/execution-error -> 400/502, template-error -> 422.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := string(routeerror.KindExecution)
	code := ""
	message := err.Error()

	if re, ok := routeerror.AsError(err); ok {
		kind = string(re.Kind)
		code = re.Code
		message = re.Message
		switch re.Kind {
		case routeerror.KindConfiguration:
			status = http.StatusBadRequest
		case routeerror.KindTemplate:
			status = http.StatusUnprocessableEntity
		case routeerror.KindExecution:
			status = http.StatusBadGateway
		case routeerror.KindProvider:
			status = http.StatusBadGateway
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    kind,
			"code":    code,
			"message": message,
		},
	})
}
