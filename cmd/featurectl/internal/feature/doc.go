// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package feature defines the feature group: an isolated, path-routed deployment
of the backend and frontend tiers identified by a short slug.

# Overview

A feature group owns:

  - a unique group number (20..255), assigned once at creation
  - a /24 block on the shared Docker network: 172.<number>.4.0/24
  - one container per role, named feature-<id>-<role>
  - a URL path /<id>/ on the shared reverse proxy

Everything derived from (id, number) is computed exactly once by [Derive]
when the group is created and stored with the record. Readers never
recompute it, so a change to the naming scheme cannot silently re-address
a group that is already running.

# Addressing

	role        octet   example (number 42)
	backend     100     172.42.4.100
	worker      101     172.42.4.101
	scheduler   102     172.42.4.102
	redis       110     172.42.4.110
	rabbitmq    111     172.42.4.111
	mariadb     112     172.42.4.112
	frontend    120     172.42.4.120
	(unknown)   199     172.42.4.199

# Errors

All validation failures wrap one of the sentinel errors in errors.go so
callers can match them with errors.Is.
*/
package feature
