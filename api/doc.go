/*
Package api defines the HTTP surface of the fhevm daemon: request and
response types, the server configuration and a Go client.

# Endpoints

	GET  /api/instance            current lifecycle state of the encryption instance
	POST /api/instance/refresh    rebuild the instance for the configured network
	POST /api/encrypt             encrypt clear values for a contract and user
	POST /api/decrypt             decrypt handles with the daemon's account
	GET  /api/authorization       inspect the cached decryption authorization
	GET  /livez, /readyz          health
	GET  /drain, /undrain         readiness toggles for load balancers

Values cross the API as decimal strings so that 128 and 256 bit integers
survive JSON clients that use float64.
*/
package api
