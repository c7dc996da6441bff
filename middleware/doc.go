// Package middleware exposes net/http adapters over examcore.Engine.
//
// # Guards
//
//   - [Guard]: bearer token validation against the session registry.
//   - [RequireAccount]: Guard plus a match between the token's account and the route's.
//   - [RequireQuota]: rejects requests from accounts with no AI quota left.
//
// Every decision is delegated to the Engine. This package only translates
// results into HTTP status codes and request context values.
package middleware
