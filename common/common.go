// Package common holds build metadata and logging setup shared by the commands.
package common

var (
	// Version is set at build time with -ldflags "-X".
	Version = "dev"

	// PackageName is used as the metrics namespace.
	PackageName = "fhevm_client"
)
