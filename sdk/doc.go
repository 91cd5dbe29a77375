// Package sdk owns the process-wide relayer SDK handle and loads it from a
// primary source with a fallback.
//
// The handle replaces ambient global lookup: callers hold a *Handle (Global
// by default) and pass it to the Loader and to the instance factory. A
// handle is loaded at most once per successful load and initialized at most
// once.
package sdk
