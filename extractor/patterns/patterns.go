// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package patterns embeds the extraction context vocabulary.
package patterns

import _ "embed"

//go:embed extraction_patterns.yaml
var ExtractionPatterns []byte
