package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/radlab-io/authgate/authreasons"
	"github.com/radlab-io/authgate/claims"
	"github.com/radlab-io/authgate/loopguard"
	"github.com/radlab-io/authgate/pathauthz"
	"github.com/radlab-io/authgate/verificationcache"
	"go.uber.org/zap"
)

const (
	HeaderSubject = "X-Auth-Subject"
	HeaderRole    = "X-Auth-Role"
	HeaderTrust   = "X-Auth-Trust"
)

type Verifier interface {
	Verify(ctx context.Context, credential string) (*claims.Claims, error)
}

type FallbackDecoder func(credential string) (*claims.Claims, error)

type Options struct {
	CookieName    string
	APIPrefix     string
	LoginPath     string
	WaitingPath   string
	DashboardPath string
	DevMode       bool
}

// Gateway renders the per-request allow/redirect/reject decision. It runs in
// the restricted edge context: no identity-store access, so revocation is
// detected with a lag bounded by the verification cache TTL.
type Gateway struct {
	verifier Verifier
	fallback FallbackDecoder
	cache    *verificationcache.Cache
	guard    *loopguard.Guard
	table    pathauthz.Matcher
	opts     Options
	logger   *zap.Logger
}

func NewGateway(verifier Verifier, fallback FallbackDecoder, cache *verificationcache.Cache, guard *loopguard.Guard, table pathauthz.Matcher, opts Options, logger *zap.Logger) *Gateway {
	return &Gateway{
		verifier: verifier,
		fallback: fallback,
		cache:    cache,
		guard:    guard,
		table:    table,
		opts:     opts,
		logger:   logger,
	}
}

type decisionKind int

const (
	decisionAllow decisionKind = iota
	decisionRedirect
	decisionReject
)

type decision struct {
	kind        decisionKind
	reason      string
	target      string
	status      int
	message     string
	details     map[string]string
	clearCookie bool
	claims      *claims.Claims
	trust       claims.TrustLevel
	conditional bool
}

// decide runs the decision state machine for one request. The steps are
// strictly ordered: public bypass, credential extraction, cache/verify/
// fallback, approval check, role check.
func (g *Gateway) decide(r *http.Request) decision {
	path := r.URL.Path

	if g.table.IsPublic(path) {
		return decision{kind: decisionAllow, reason: authreasons.PublicPath}
	}

	isAPI := path == g.opts.APIPrefix || strings.HasPrefix(path, g.opts.APIPrefix+"/")
	identity := claims.Identity{Host: r.Host, Path: path}

	credential := g.extractCredential(r)
	if credential == "" {
		return g.inconclusive(identity, isAPI, authreasons.MissingCredential, false)
	}

	cl, trust, failure := g.resolveClaims(r.Context(), credential)
	if failure != nil {
		switch {
		case errors.Is(failure, authgateerrors.ErrVerificationTimeout):
			return g.inconclusive(identity, isAPI, authreasons.VerificationTimedOut, true)
		case errors.Is(failure, authgateerrors.ErrExpired):
			return g.conclusiveReject(identity, isAPI, authreasons.ExpiredCredential, failure)
		default:
			reason := authreasons.InvalidSignature
			if errors.Is(failure, authgateerrors.ErrMalformed) {
				reason = authreasons.MalformedCredential
			}

			return g.conclusiveReject(identity, isAPI, reason, failure)
		}
	}

	identity.Subject = cl.SubjectID

	if trust == claims.TrustVerified {
		g.guard.Reset(identity)
		g.guard.Reset(claims.Identity{Host: r.Host, Path: path})
	}

	// The waiting page must stay reachable for unapproved users, otherwise
	// the approval redirect below would loop.
	if path == g.opts.WaitingPath {
		return decision{kind: decisionAllow, claims: cl, trust: trust}
	}

	if !cl.Approved {
		if isAPI {
			return decision{
				kind:    decisionReject,
				status:  http.StatusForbidden,
				message: authreasons.NotApproved,
				reason:  authreasons.NotApproved,
				claims:  cl,
			}
		}

		return decision{kind: decisionRedirect, target: g.opts.WaitingPath, reason: authreasons.NotApproved, claims: cl}
	}

	if !g.table.IsAllowed(cl.Role, path) {
		reason := fmt.Sprintf(authreasons.RoleNotAuthorized, path)

		if isAPI {
			return decision{
				kind:    decisionReject,
				status:  http.StatusForbidden,
				message: reason,
				details: map[string]string{"role": string(cl.Role), "path": path},
				reason:  reason,
				claims:  cl,
			}
		}

		// Authenticated but not authorized for this path: send to the
		// default landing page, not back to login.
		return decision{kind: decisionRedirect, target: g.opts.DashboardPath, reason: reason, claims: cl}
	}

	return decision{kind: decisionAllow, claims: cl, trust: trust}
}

// resolveClaims applies the cache, full verification, and the unverified
// fallback, in that order. A timeout whose fallback decode also fails
// surfaces as ErrVerificationTimeout so the caller treats it as inconclusive.
func (g *Gateway) resolveClaims(ctx context.Context, credential string) (*claims.Claims, claims.TrustLevel, error) {
	if entry, hit := g.cache.Get(credential); hit {
		return &entry.Claims, entry.Trust, nil
	}

	verified, err := g.verifier.Verify(ctx, credential)
	if err == nil {
		g.cache.Put(credential, *verified, claims.TrustVerified)

		return verified, claims.TrustVerified, nil
	}

	if !errors.Is(err, authgateerrors.ErrVerificationTimeout) {
		return nil, claims.TrustVerified, err
	}

	decoded, decodeErr := g.fallback(credential)
	if decodeErr != nil {
		return nil, claims.TrustVerified, err
	}

	// Lower-trust claims get the shorter unverified TTL in the cache.
	g.cache.Put(credential, *decoded, claims.TrustUnverified)

	return decoded, claims.TrustUnverified, nil
}

// inconclusive handles the cases where no authorization verdict could be
// reached: missing credential, or verification timed out and the fallback
// decode failed. The loop guard grants a bounded number of passes so a
// transient hiccup does not trap the user in a login redirect loop.
func (g *Gateway) inconclusive(identity claims.Identity, isAPI bool, reason string, clearCookie bool) decision {
	if g.guard.Allow(identity) {
		g.logger.Warn("Conditional allow under redirect-loop guard",
			zap.String("host", identity.Host),
			zap.String("path", identity.Path),
			zap.String("reason", reason))

		return decision{kind: decisionAllow, reason: authreasons.ConditionalAllow, conditional: true}
	}

	if isAPI {
		return decision{
			kind:        decisionReject,
			status:      http.StatusUnauthorized,
			message:     reason,
			reason:      reason,
			clearCookie: clearCookie,
		}
	}

	return decision{kind: decisionRedirect, target: g.opts.LoginPath, reason: reason, clearCookie: clearCookie}
}

// conclusiveReject handles definitive verification failures. API callers get
// a deterministic 401 immediately; browser requests go back to login. The
// stored cookie is cleared in both cases so the client stops replaying a
// dead credential.
func (g *Gateway) conclusiveReject(identity claims.Identity, isAPI bool, reason string, failure error) decision {
	g.logger.Info("Rejecting credential",
		zap.String("host", identity.Host),
		zap.String("path", identity.Path),
		zap.String("reason", reason),
		zap.Error(failure))

	if isAPI {
		d := decision{
			kind:        decisionReject,
			status:      http.StatusUnauthorized,
			message:     reason,
			reason:      reason,
			clearCookie: true,
		}
		if g.opts.DevMode {
			d.details = map[string]string{"error": failure.Error()}
		}

		return d
	}

	return decision{kind: decisionRedirect, target: g.opts.LoginPath, reason: reason, clearCookie: true}
}

// extractCredential reads the auth cookie first and falls back to the
// Authorization bearer header, which API clients use instead of cookies.
func (g *Gateway) extractCredential(r *http.Request) string {
	if cookie, err := r.Cookie(g.opts.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")

	if credential, found := strings.CutPrefix(authHeader, "Bearer "); found {
		return credential
	}

	return ""
}

// Middleware applies the decision to the request chain: pass through,
// redirect, or render a JSON error.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The identity headers are gateway-asserted only. Anything the
		// client sent must go before the decision is made.
		r.Header.Del(HeaderSubject)
		r.Header.Del(HeaderRole)
		r.Header.Del(HeaderTrust)

		requestID := uuid.NewString()
		d := g.decide(r)

		if d.clearCookie {
			g.clearCookie(w)
		}

		switch d.kind {
		case decisionRedirect:
			g.logger.Info("Redirecting request",
				zap.String("requestId", requestID),
				zap.String("path", r.URL.Path),
				zap.String("target", d.target),
				zap.String("reason", d.reason))
			http.Redirect(w, r, d.target, http.StatusFound)
		case decisionReject:
			g.logger.Info("Rejecting request",
				zap.String("requestId", requestID),
				zap.String("path", r.URL.Path),
				zap.Int("status", d.status),
				zap.String("reason", d.reason))
			g.writeError(w, d)
		default:
			if d.claims != nil {
				r.Header.Set(HeaderSubject, d.claims.SubjectID)
				r.Header.Set(HeaderRole, string(d.claims.Role))
				r.Header.Set(HeaderTrust, d.trust.String())
			}

			next.ServeHTTP(w, r)
		}
	})
}

type errorResponse struct {
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (g *Gateway) writeError(w http.ResponseWriter, d decision) {
	response := errorResponse{Message: d.message}
	if g.opts.DevMode {
		response.Details = d.details
	}

	body, err := json.Marshal(response)
	if err != nil {
		g.logger.Error("Failed to marshal error response", zap.Error(err))
		http.Error(w, d.message, d.status)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.status)
	w.Write(body)
}

func (g *Gateway) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
