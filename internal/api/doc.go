// Package api exposes the media job queue over HTTP for administrators. It
// decodes and validates requests, delegates to the queue package for the
// dispatch, reclaim and health operations, and maps internal errors onto
// sanitized JSON responses.
package api
