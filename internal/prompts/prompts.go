// Package prompts holds the instructions sent to the rewrite model.
package prompts

import _ "embed"

// System is the system prompt describing the rewrite contract.
//
//go:embed system.md
var System string
