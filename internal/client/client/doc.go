// Package client talks to the remote REST API that is the source of truth
// for every entity kind.
//
// # Contract
//
//	GET    /api/{kind}       -> {"{kind}": [records]}
//	POST   /api/{kind}       -> {"{singular}": record}
//	GET    /api/{kind}/{id}  -> {"{singular}": record}
//	PUT    /api/{kind}/{id}  -> {"{singular}": record}
//	DELETE /api/{kind}/{id}  -> 200 or 204
//	GET    /api/health       -> 200
//
// Requests carry the session cookie through an http.CookieJar.
//
// # Error Handling
//
// Transport failures, timeouts and 5xx responses map to ErrUnavailable,
// 401/403 to ErrUnauthorized and 404 to ErrNotFound. Every non-2xx response
// is returned as an *APIError that unwraps to the matching sentinel, so both
// errors.Is and errors.As work. IsRetryable tells transient failures from
// permanent ones.
package client
