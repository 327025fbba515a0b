// SPDX-License-Identifier: Apache-2.0

package version

// Version information set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)
