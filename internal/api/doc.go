// Package api provides the JSON HTTP server for the MuseBag search
// front-end.
//
// # Architecture
//
// The server uses Go 1.22+ method-qualified routing with a layered
// middleware stack:
//
//	Recovery → Logging → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unauthenticated.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — returns {"status":"ok"}
//   - GET /ready  — returns {"status":"ok"} once the session backend answers
//
// Identity:
//   - POST /api/v1/login  — validate credentials against the profile
//     service, bind the user to the session
//   - POST /api/v1/logout — destroy the session
//
// Profile:
//   - GET  /api/v1/profile/{attrib} — read a single profile attribute
//   - POST /api/v1/profile/{attrib} — update a profile attribute
//     (Settings are merged key-by-key)
//   - POST /api/v1/history          — record result items and flush the
//     finished query to the user's search history
//
// Query pipeline:
//   - POST /api/v1/query       — compose the query document (plus the
//     real-world context companion) and submit it to the query formulator
//   - POST /api/v1/query/items — stage uploaded files and canvas sketches
//     and distribute them to the query formulator
//
// # Response envelope
//
// Success responses carry the payload directly; failures carry
// {"error": "..."}. Protocol outcomes the front-end string-matches on
// ("nochange", "guest") ride on 200 since they are answers, not faults.
// Input errors map to 4xx, upstream service failures to 502.
//
// # Security
//
// The middleware stack enforces:
//   - Per-IP rate limiting (token bucket)
//   - Security headers (CSP, HSTS, X-Frame-Options, etc.)
//   - HttpOnly, Secure, SameSite=Lax session cookies
package api
