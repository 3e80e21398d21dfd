// Package httpapi hosts the HTTP handlers that front the guildgate REST API.
//
// Every route is declared as an Endpoint and served through one shared
// request lifecycle: parse, authenticate, authorize, validate, execute,
// format. The per-verb differences live in the Endpoint's execute strategy
// and success status; the pipeline and its failure mapping live in one place,
// so no handler duplicates validation or error translation and no raw
// failure reaches a client without passing through the error taxonomy.
//
// Handlers delegate persistence to storage.Repository implementations and
// authentication to the auth.Authenticator injected at construction time; the
// package does not reach for globals and expects callers to supply fully
// configured dependencies.
package httpapi
