// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for security-critical
// identifiers.
//
// Session IDs arrive from an external gateway and end up in log lines,
// metric labels, and debug URLs; validating their shape up front prevents
// log injection and path-traversal style abuse.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// sessionIDPattern matches externally assigned conversation identifiers.
// Allows: letters, digits, dots, underscores, hyphens. Max 64 characters.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateSessionID checks an externally supplied session identifier.
//
// Valid IDs:
//   - 1-64 characters
//   - letters, digits, dots, underscores, hyphens
//   - must start with a letter or digit
//
// Returns an error if the ID is invalid.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("sessionId cannot be empty")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid sessionId format: must be 1-64 alphanumeric chars, dots, underscores, or hyphens")
	}
	return nil
}

// SanitizeSessionID trims whitespace and validates. Returns the cleaned ID
// if valid.
func SanitizeSessionID(id string) (string, error) {
	cleaned := strings.TrimSpace(id)
	if err := ValidateSessionID(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}
