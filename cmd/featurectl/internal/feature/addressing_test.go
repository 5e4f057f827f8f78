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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// IPFor Tests
// =============================================================================

func TestIPFor(t *testing.T) {
	tests := []struct {
		name   string
		number int
		role   Role
		want   string
	}{
		{"first backend", 20, RoleBackend, "172.20.4.100"},
		{"worker", 20, RoleWorker, "172.20.4.101"},
		{"scheduler", 20, RoleScheduler, "172.20.4.102"},
		{"redis of second group", 21, RoleRedis, "172.21.4.110"},
		{"rabbitmq", 42, RoleRabbitMQ, "172.42.4.111"},
		{"mariadb", 42, RoleMariaDB, "172.42.4.112"},
		{"frontend", 255, RoleFrontend, "172.255.4.120"},
		{"unknown role", 20, Role("unknown"), "172.20.4.199"},
		{"empty role", 20, Role(""), "172.20.4.199"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IPFor(tt.number, tt.role))
		})
	}
}

// TestIPFor_DistinctGroupsNeverCollide checks every role address of every
// pair of distinct numbers.
func TestIPFor_DistinctGroupsNeverCollide(t *testing.T) {
	seen := make(map[string]int)
	for n := MinGroupNumber; n <= MaxGroupNumber; n++ {
		for _, r := range Roles() {
			ip := IPFor(n, r)
			owner, dup := seen[ip]
			require.False(t, dup, "%s issued to %d and %d", ip, owner, n)
			seen[ip] = n
		}
	}
}

func TestSubnet(t *testing.T) {
	assert.Equal(t, "172.42.4.0/24", Subnet(42))
}

// =============================================================================
// Derive Tests
// =============================================================================

func TestDerive(t *testing.T) {
	d := Derive("feat-42", 42)

	assert.Equal(t, "feature-feat-42-backend", d.BackendContainer)
	assert.Equal(t, "feature-feat-42-frontend", d.FrontendContainer)
	assert.Equal(t, "feature-feat-42-mariadb", d.DBContainer)
	assert.Equal(t, "redis-feat-42", d.RedisHost)
	assert.Equal(t, "rabbitmq-feat-42", d.RabbitMQHost)
	assert.Equal(t, "/feat-42/", d.URLPath)

	for _, r := range Roles() {
		assert.Equal(t, IPFor(42, r), d.IP(r), "role %s", r)
		assert.Equal(t, ContainerName("feat-42", r), d.Container(r), "role %s", r)
	}
	assert.Empty(t, d.IP(Role("nope")))
	assert.Empty(t, d.Container(Role("nope")))
}

// =============================================================================
// NextGroupNumber Tests
// =============================================================================

func TestNextGroupNumber(t *testing.T) {
	tests := []struct {
		name      string
		numbers   []int
		highWater int
		want      int
	}{
		{"empty store", nil, 0, 20},
		{"one group", []int{20}, 0, 21},
		{"gap is not filled", []int{20, 25}, 0, 26},
		{"partial record ignored", []int{0, 21}, 0, 22},
		{"numbers below floor ignored", []int{3, 7}, 0, 20},
		{"high water wins after removing max", []int{20}, 21, 22},
		{"max wins over stale high water", []int{30}, 21, 31},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var groups []Group
			for _, n := range tt.numbers {
				groups = append(groups, Group{ID: "g", Number: n})
			}
			got, err := NextGroupNumber(groups, tt.highWater)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextGroupNumber_Exhausted(t *testing.T) {
	_, err := NextGroupNumber([]Group{{ID: "last", Number: MaxGroupNumber}}, 0)
	assert.ErrorIs(t, err, ErrAddressSpaceExhausted)

	_, err = NextGroupNumber(nil, MaxGroupNumber)
	assert.ErrorIs(t, err, ErrAddressSpaceExhausted)

	got, err := NextGroupNumber(nil, MaxGroupNumber-1)
	require.NoError(t, err)
	assert.Equal(t, MaxGroupNumber, got)
}

// =============================================================================
// Group Tests
// =============================================================================

func TestNewGroup(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 800, time.FixedZone("x", 3600))
	g := NewGroup(CreateSpec{ID: "feat-42", BackendBranch: "dev"}, 42, now)

	assert.Equal(t, "feat-42", g.ID)
	assert.Equal(t, 42, g.Number)
	assert.Equal(t, "dev", g.BackendBranch)
	assert.Equal(t, NoBranch, g.FrontendBranch, "empty branch becomes the sentinel")
	assert.Equal(t, time.UTC, g.CreatedAt.Location())
	assert.Equal(t, 4, g.CreatedAt.Hour())
	assert.Zero(t, g.CreatedAt.Nanosecond())
	assert.Equal(t, Derive("feat-42", 42), g.Derived)

	assert.True(t, g.HasTier(TierBackend))
	assert.False(t, g.HasTier(TierFrontend))
	assert.Equal(t, []Tier{TierBackend}, g.DeployedTiers())
}

func TestGroup_RolesFor(t *testing.T) {
	g := Group{ID: "a", BackendBranch: "dev", FrontendBranch: "main"}
	assert.Equal(t,
		[]Role{RoleBackend, RoleWorker, RoleScheduler, RoleRedis, RoleRabbitMQ},
		g.RolesFor(TierBackend))
	assert.Equal(t, []Role{RoleFrontend}, g.RolesFor(TierFrontend))

	g.UseLocalDB = true
	assert.Contains(t, g.RolesFor(TierBackend), RoleMariaDB)
	assert.NotContains(t, g.RolesFor(TierFrontend), RoleMariaDB)
}

func TestSortGroups(t *testing.T) {
	groups := []Group{{ID: "c", Number: 22}, {ID: "b", Number: 20}, {ID: "a", Number: 22}, {ID: "z", Number: 0}}
	SortGroups(groups)

	var ids []string
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"z", "b", "a", "c"}, ids)
}
