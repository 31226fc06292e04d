//go:build tools

// Package tools pins the code generators behind the go:generate directives.
package tools

import (
	_ "github.com/dmarkham/enumer"
)
