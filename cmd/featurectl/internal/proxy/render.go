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
Package proxy generates and applies the shared reverse proxy configuration.

The configuration is always rebuilt from the full list of groups; there is
no incremental editing. Render is pure, Writer replaces the file
atomically, and a Reloader tells nginx to pick it up.

# Routing

For each group with id <id>:

	/<id>                  301 to /<id>/
	/<id>/...              frontend tier, or 404 without one
	/<id>/api/...          backend tier with the /<id> prefix stripped
	                       (same for app, internal, error, php, assets,
	                       docs, openapi.json)

The bare root redirects to the group with the lowest number.
*/
package proxy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/featurectl/cmd/featurectl/internal/feature"
)

// ManagedBanner is the first line of every generated file.
const ManagedBanner = "# Managed by featurectl. Manual edits are overwritten on the next deploy or remove."

// RenderOptions are the fixed parts of the generated server block.
type RenderOptions struct {
	ListenPort        int
	ServerName        string
	BackendPort       int
	FrontendPort      int
	ClientMaxBodySize string
	Resolver          string
	ProxyReadTimeout  string

	// BackendPrefixes are the first path segments routed to the backend.
	BackendPrefixes []string
}

// DefaultRenderOptions returns the options used when none are configured.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		ListenPort:        80,
		ServerName:        "_",
		BackendPort:       80,
		FrontendPort:      80,
		ClientMaxBodySize: "64m",
		Resolver:          "127.0.0.11",
		ProxyReadTimeout:  "300s",
		BackendPrefixes:   []string{"api", "app", "internal", "error", "php", "assets", "docs", "openapi.json"},
	}
}

func (o RenderOptions) withDefaults() RenderOptions {
	d := DefaultRenderOptions()
	if o.ListenPort == 0 {
		o.ListenPort = d.ListenPort
	}
	if o.ServerName == "" {
		o.ServerName = d.ServerName
	}
	if o.BackendPort == 0 {
		o.BackendPort = d.BackendPort
	}
	if o.FrontendPort == 0 {
		o.FrontendPort = d.FrontendPort
	}
	if o.ClientMaxBodySize == "" {
		o.ClientMaxBodySize = d.ClientMaxBodySize
	}
	if o.Resolver == "" {
		o.Resolver = d.Resolver
	}
	if o.ProxyReadTimeout == "" {
		o.ProxyReadTimeout = d.ProxyReadTimeout
	}
	if len(o.BackendPrefixes) == 0 {
		o.BackendPrefixes = d.BackendPrefixes
	}
	return o
}

// Render returns the complete proxy configuration for groups.
//
// # Description
//
// Pure: the same groups and options always produce the same bytes. Groups
// are ordered by (Number, ID) regardless of input order. The input slice is
// not modified.
func Render(groups []feature.Group, opts RenderOptions) string {
	opts = opts.withDefaults()

	sorted := make([]feature.Group, len(groups))
	copy(sorted, groups)
	feature.SortGroups(sorted)

	var b strings.Builder
	w := func(indent int, format string, args ...any) {
		b.WriteString(strings.Repeat("    ", indent))
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	w(0, "%s", ManagedBanner)
	w(0, "# Feature groups: %d", len(sorted))
	w(0, "")
	w(0, "server {")
	w(1, "listen %d;", opts.ListenPort)
	w(1, "server_name %s;", opts.ServerName)
	w(0, "")
	w(1, "resolver %s valid=10s ipv6=off;", opts.Resolver)
	w(1, "resolver_timeout 5s;")
	w(0, "")
	w(1, "client_max_body_size %s;", opts.ClientMaxBodySize)
	w(0, "")
	w(1, "add_header X-Frame-Options \"SAMEORIGIN\" always;")
	w(1, "add_header X-Content-Type-Options \"nosniff\" always;")
	w(1, "add_header Referrer-Policy \"strict-origin-when-cross-origin\" always;")
	w(0, "")
	w(1, "proxy_http_version 1.1;")
	w(1, "proxy_set_header Host $host;")
	w(1, "proxy_set_header X-Real-IP $remote_addr;")
	w(1, "proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;")
	w(1, "proxy_set_header X-Forwarded-Proto $scheme;")
	w(1, "proxy_buffering on;")
	w(1, "proxy_buffer_size 16k;")
	w(1, "proxy_buffers 8 16k;")
	w(1, "proxy_connect_timeout 10s;")
	w(1, "proxy_send_timeout %s;", opts.ProxyReadTimeout)
	w(1, "proxy_read_timeout %s;", opts.ProxyReadTimeout)

	if len(sorted) > 0 {
		w(0, "")
		w(1, "location = / {")
		w(2, "return 302 %s;", urlPath(sorted[0]))
		w(1, "}")
	}

	prefixes := backendPrefixPattern(opts.BackendPrefixes)
	for _, g := range sorted {
		path := urlPath(g)
		bare := strings.TrimSuffix(path, "/")
		varBase := variableBase(g.ID)

		w(0, "")
		w(1, "# %s (group %d)", g.ID, g.Number)
		w(1, "location = %s {", bare)
		w(2, "return 301 %s;", path)
		w(1, "}")
		w(0, "")
		w(1, "location %s {", path)
		if g.HasTier(feature.TierFrontend) {
			w(2, "set $%s_frontend http://%s:%d;", varBase, containerFor(g, feature.RoleFrontend), opts.FrontendPort)
			w(2, "proxy_pass $%s_frontend;", varBase)
		} else {
			w(2, "return 404;")
		}
		if g.HasTier(feature.TierBackend) {
			w(0, "")
			w(2, "location ~ ^%s(%s)(/|$) {", regexp.QuoteMeta(path), prefixes)
			w(3, "set $%s_backend http://%s:%d;", varBase, containerFor(g, feature.RoleBackend), opts.BackendPort)
			w(3, "rewrite ^%s(.*)$ /$1 break;", regexp.QuoteMeta(path))
			w(3, "proxy_pass $%s_backend;", varBase)
			w(2, "}")
		}
		w(1, "}")
	}

	w(0, "")
	w(1, "location / {")
	w(2, "return 404;")
	w(1, "}")
	w(0, "}")

	return b.String()
}

// urlPath prefers the stored path and falls back to the id.
func urlPath(g feature.Group) string {
	if g.URLPath != "" {
		return g.URLPath
	}
	return feature.URLPath(g.ID)
}

func containerFor(g feature.Group, role feature.Role) string {
	if name := g.Container(role); name != "" {
		return name
	}
	return feature.ContainerName(g.ID, role)
}

// variableBase names the group's nginx variables. The letter prefix keeps
// ids with a leading digit from being read as regex captures ($1..$9).
func variableBase(id string) string {
	return "fg_" + strings.ReplaceAll(id, "-", "_")
}

func backendPrefixPattern(prefixes []string) string {
	quoted := make([]string, len(prefixes))
	for i, p := range prefixes {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, "|")
}
