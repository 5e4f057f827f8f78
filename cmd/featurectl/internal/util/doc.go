// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package util provides leaf utilities shared by the featurectl packages.
//
// Everything here depends only on the standard library:
//
//   - CommandError: a failed git or compose invocation with its stderr
//   - EnvVar: validated KEY=VALUE pairs passed to child processes
//   - WriteFileAtomic: temp file + fsync + rename
//   - Timeouts: per-tool deadlines where zero means "no deadline"
package util
