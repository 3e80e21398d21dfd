// Package server hosts the guild roster API behind a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// metrics, security headers, CORS, rate limiting, and audit so handlers all
// share common protections and instrumentation. Authentication itself runs
// inside the request pipeline owned by the httpapi package, not here.
package server
