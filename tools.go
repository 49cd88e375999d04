//go:build tools

// Package tools pins build-time tooling so go mod tidy keeps it in go.mod.
// The cobra doc package drives the man-page generator under scripts/.
package tools

import (
	_ "github.com/spf13/cobra/doc"
)
