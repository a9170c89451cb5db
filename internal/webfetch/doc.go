// Package webfetch performs single plain-HTTP GET requests.
//
// Requests are sent as HTTP/1.0 with Connection: close over a fresh TCP
// connection. Redirects are not followed and TLS is not supported.
package webfetch
