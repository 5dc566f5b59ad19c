// Package api defines the wire types of the AgentGraph HTTP runtime.
//
// # API Overview
//
// graphctl serve exposes every registered graph under /v1/graphs:
//
//	GET    /v1/graphs                                   list graphs
//	GET    /v1/graphs/{graph}                           graph summary
//	GET    /v1/graphs/{graph}/topology?format=...       json, yaml, mermaid, dot or svg
//	POST   /v1/graphs/{graph}/invoke                    run or resume a thread
//	GET    /v1/graphs/{graph}/stream                    WebSocket streaming run
//	GET    /v1/graphs/{graph}/threads                   list threads
//	GET    /v1/graphs/{graph}/threads/{thread}/state    latest snapshot
//	PATCH  /v1/graphs/{graph}/threads/{thread}/state    merge a state delta
//	GET    /v1/graphs/{graph}/threads/{thread}/history  all snapshots, oldest first
//	DELETE /v1/graphs/{graph}/threads/{thread}          drop a thread
//
// JSON responses use the envelope in api/handlers (success, data, error,
// timestamp). States are passed through as raw JSON; their shape is defined
// by each graph's state type.
//
// # Authentication
//
// When API keys are configured, requests carry the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// When a JWT secret is configured, requests carry an HS256 bearer token.
// Health, version and metrics endpoints are exempt.
package api
