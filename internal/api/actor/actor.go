// Package actor derives the rate limit identity of an unauthenticated caller.
package actor

import (
	"net"
	"net/http"

	"github.com/google/uuid"
)

// DeviceIDHeader carries the installation id the mobile client sends with
// every request.
const DeviceIDHeader = "X-Device-ID"

// FromRequest returns the actor key for a request. A well-formed device id
// takes priority; otherwise the client IP is used so requests without the
// header still share a bucket.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(DeviceIDHeader); id != "" {
		if parsed, err := uuid.Parse(id); err == nil {
			return "device:" + parsed.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
