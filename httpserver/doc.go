/*
Package httpserver runs the fhevm daemon: a local HTTP API that keeps one
encryption instance alive for the configured network and encrypts or
decrypts on behalf of its callers.

The instance is owned by a lifecycle.Manager. Requests that need it answer
503 until the manager reports ready, and /readyz follows the same rule so a
load balancer only routes to daemons that can serve. Decryption uses the
daemon's signer; the first request for a contract set prompts for a
decryption authorization, later ones reuse the cached one until it expires.

Errors are JSON objects of the form {"error": "..."}.
*/
package httpserver
