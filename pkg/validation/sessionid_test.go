// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateSessionID(t *testing.T) {
	valid := []string{
		"abc123",
		"session-2024.06_01",
		"A",
		"9" + strings.Repeat("x", 63),
	}
	for _, id := range valid {
		if err := ValidateSessionID(id); err != nil {
			t.Errorf("ValidateSessionID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		".leading-dot",
		"-leading-hyphen",
		"has space",
		"has/slash",
		"../../etc/passwd",
		"x" + strings.Repeat("y", 64),
		"newline\nin-id",
	}
	for _, id := range invalid {
		if err := ValidateSessionID(id); err == nil {
			t.Errorf("ValidateSessionID(%q) = nil, want error", id)
		}
	}
}

func TestSanitizeSessionID(t *testing.T) {
	got, err := SanitizeSessionID("  session-42  ")
	if err != nil {
		t.Fatalf("SanitizeSessionID returned error: %v", err)
	}
	if got != "session-42" {
		t.Errorf("got %q, want %q", got, "session-42")
	}

	if _, err := SanitizeSessionID("   "); err == nil {
		t.Error("whitespace-only ID should be rejected")
	}
}
