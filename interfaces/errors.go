package interfaces

import "errors"

var (
	// ErrAborted is returned when an instance build is superseded or
	// cancelled. It is never a business failure.
	ErrAborted = errors.New("operation aborted")

	// ErrEnvironment is returned when no SDK host handle is available.
	ErrEnvironment = errors.New("no SDK host environment")

	// ErrSDKIntegrity is returned when a loaded SDK does not satisfy the
	// required capability contract.
	ErrSDKIntegrity = errors.New("relayer SDK is present but invalid")

	// ErrSDKLoadFailed is returned when both the primary and the fallback
	// SDK sources failed. Safe to retry.
	ErrSDKLoadFailed = errors.New("relayer SDK load failed")

	// ErrSDKInitFailed is returned when the SDK reports an unsuccessful
	// initialization.
	ErrSDKInitFailed = errors.New("relayer SDK initialization failed")

	// ErrInvalidAddress is returned for a malformed ACL contract address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrSignatureRejected is returned by signers when the wallet refuses or
	// fails to produce a signature.
	ErrSignatureRejected = errors.New("signature rejected")

	// ErrContentNotFound is returned when a key is absent from a store.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
