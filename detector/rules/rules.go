// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rules embeds the tactic lexicon consumed by the scam detector.
// Keeping the YAML in the binary means the detector has no runtime file
// dependencies and the lexicon is versioned with the code.
package rules

import _ "embed"

//go:embed scam_lexicon.yaml
var ScamLexicon []byte
