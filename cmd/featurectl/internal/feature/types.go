// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feature

import (
	"sort"
	"time"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// NoBranch is the branch sentinel meaning "this tier is not deployed".
	NoBranch = "none"

	// MinGroupNumber is the first group number ever issued.
	MinGroupNumber = 20

	// MaxGroupNumber is the last usable second octet of 172.x.4.0/24.
	MaxGroupNumber = 255

	// MaxIDLength keeps derived container names well inside Docker's limits.
	MaxIDLength = 40

	// ContainerPrefix prefixes every container a feature group owns.
	ContainerPrefix = "feature-"
)

// =============================================================================
// Tier and Role
// =============================================================================

// Tier is one independently deployable half of the application.
type Tier string

const (
	TierBackend  Tier = "backend"
	TierFrontend Tier = "frontend"
)

// Tiers returns every tier in deployment order.
func Tiers() []Tier {
	return []Tier{TierBackend, TierFrontend}
}

// Role identifies a single service within a feature group.
type Role string

const (
	RoleBackend   Role = "backend"
	RoleWorker    Role = "worker"
	RoleScheduler Role = "scheduler"
	RoleRedis     Role = "redis"
	RoleRabbitMQ  Role = "rabbitmq"
	RoleMariaDB   Role = "mariadb"
	RoleFrontend  Role = "frontend"
)

// Roles returns every known role in address order.
func Roles() []Role {
	return []Role{
		RoleBackend, RoleWorker, RoleScheduler,
		RoleRedis, RoleRabbitMQ, RoleMariaDB,
		RoleFrontend,
	}
}

// Tier returns the tier a role is deployed with.
func (r Role) Tier() Tier {
	if r == RoleFrontend {
		return TierFrontend
	}
	return TierBackend
}

// =============================================================================
// Group
// =============================================================================

// Derived holds every value computed from (id, number) at creation time.
//
// Fields are flat so a record stays readable with plain key: value
// extraction.
type Derived struct {
	BackendContainer   string `yaml:"backend_container"`
	WorkerContainer    string `yaml:"worker_container"`
	SchedulerContainer string `yaml:"scheduler_container"`
	RedisContainer     string `yaml:"redis_container"`
	RabbitMQContainer  string `yaml:"rabbitmq_container"`
	DBContainer        string `yaml:"db_container"`
	FrontendContainer  string `yaml:"frontend_container"`

	BackendIP   string `yaml:"backend_ip"`
	WorkerIP    string `yaml:"worker_ip"`
	SchedulerIP string `yaml:"scheduler_ip"`
	RedisIP     string `yaml:"redis_ip"`
	RabbitMQIP  string `yaml:"rabbitmq_ip"`
	MariaDBIP   string `yaml:"mariadb_ip"`
	FrontendIP  string `yaml:"frontend_ip"`

	RedisHost    string `yaml:"redis_host"`
	RabbitMQHost string `yaml:"rabbitmq_host"`

	URLPath string `yaml:"url_path"`
}

// Container returns the container name stored for a role.
func (d Derived) Container(role Role) string {
	switch role {
	case RoleBackend:
		return d.BackendContainer
	case RoleWorker:
		return d.WorkerContainer
	case RoleScheduler:
		return d.SchedulerContainer
	case RoleRedis:
		return d.RedisContainer
	case RoleRabbitMQ:
		return d.RabbitMQContainer
	case RoleMariaDB:
		return d.DBContainer
	case RoleFrontend:
		return d.FrontendContainer
	default:
		return ""
	}
}

// IP returns the IPv4 address stored for a role.
func (d Derived) IP(role Role) string {
	switch role {
	case RoleBackend:
		return d.BackendIP
	case RoleWorker:
		return d.WorkerIP
	case RoleScheduler:
		return d.SchedulerIP
	case RoleRedis:
		return d.RedisIP
	case RoleRabbitMQ:
		return d.RabbitMQIP
	case RoleMariaDB:
		return d.MariaDBIP
	case RoleFrontend:
		return d.FrontendIP
	default:
		return ""
	}
}

// Group is the persisted feature group record.
//
// # Description
//
// Group is immutable once created. Deploy and stop operate on it without
// rewriting it; remove deletes it. There is no update operation.
type Group struct {
	ID             string    `yaml:"group_id"`
	Number         int       `yaml:"group_number"`
	BackendBranch  string    `yaml:"backend_branch"`
	FrontendBranch string    `yaml:"frontend_branch"`
	UseLocalDB     bool      `yaml:"use_local_db"`
	CreatedAt      time.Time `yaml:"created_at"`

	Derived `yaml:",inline"`
}

// CreateSpec carries the operator's choices for a new group.
type CreateSpec struct {
	ID             string
	BackendBranch  string
	FrontendBranch string
	UseLocalDB     bool
}

// Branch returns the branch configured for a tier.
func (g Group) Branch(tier Tier) string {
	if tier == TierFrontend {
		return g.FrontendBranch
	}
	return g.BackendBranch
}

// HasTier reports whether the tier is part of this group.
func (g Group) HasTier(tier Tier) bool {
	b := g.Branch(tier)
	return b != "" && b != NoBranch
}

// DeployedTiers returns the group's tiers in deployment order.
func (g Group) DeployedTiers() []Tier {
	var tiers []Tier
	for _, t := range Tiers() {
		if g.HasTier(t) {
			tiers = append(tiers, t)
		}
	}
	return tiers
}

// RolesFor returns the roles that run in a tier for this group.
// The database role is present only when the group uses a local database.
func (g Group) RolesFor(tier Tier) []Role {
	var roles []Role
	for _, r := range Roles() {
		if r.Tier() != tier {
			continue
		}
		if r == RoleMariaDB && !g.UseLocalDB {
			continue
		}
		roles = append(roles, r)
	}
	return roles
}

// NewGroup builds a complete record for a freshly allocated number.
func NewGroup(spec CreateSpec, number int, now time.Time) Group {
	return Group{
		ID:             spec.ID,
		Number:         number,
		BackendBranch:  normalizeBranch(spec.BackendBranch),
		FrontendBranch: normalizeBranch(spec.FrontendBranch),
		UseLocalDB:     spec.UseLocalDB,
		CreatedAt:      now.UTC().Truncate(time.Second),
		Derived:        Derive(spec.ID, number),
	}
}

// SortGroups orders groups by (Number, ID) in place.
func SortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Number != groups[j].Number {
			return groups[i].Number < groups[j].Number
		}
		return groups[i].ID < groups[j].ID
	})
}

func normalizeBranch(b string) string {
	if b == "" {
		return NoBranch
	}
	return b
}
