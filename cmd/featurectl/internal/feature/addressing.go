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
	"fmt"
)

// unknownRoleOctet is used for any role not in roleOctets.
const unknownRoleOctet = 199

var roleOctets = map[Role]int{
	RoleBackend:   100,
	RoleWorker:    101,
	RoleScheduler: 102,
	RoleRedis:     110,
	RoleRabbitMQ:  111,
	RoleMariaDB:   112,
	RoleFrontend:  120,
}

// IPFor returns the address of a role inside a group's block.
//
// # Description
//
// Pure and total: an unknown role maps to host octet 199. The number is not
// range checked here; the allocator guarantees 20..255.
//
// # Examples
//
//	IPFor(20, RoleBackend) // "172.20.4.100"
//	IPFor(21, RoleRedis)   // "172.21.4.110"
func IPFor(number int, role Role) string {
	octet, ok := roleOctets[role]
	if !ok {
		octet = unknownRoleOctet
	}
	return fmt.Sprintf("172.%d.4.%d", number, octet)
}

// Subnet returns the /24 block owned by a group number.
func Subnet(number int) string {
	return fmt.Sprintf("172.%d.4.0/24", number)
}

// ContainerName returns the container name for a role of a group.
func ContainerName(id string, role Role) string {
	return ContainerPrefix + id + "-" + string(role)
}

// Hostname returns the in-network hostname of a service of a group.
// Cache and broker hostnames use this form so the overlay can point at them.
func Hostname(service, id string) string {
	return service + "-" + id
}

// URLPath returns the proxy path prefix of a group.
func URLPath(id string) string {
	return "/" + id + "/"
}

// Derive computes every derived value of a group.
//
// Called once, at creation. The result is stored with the record.
func Derive(id string, number int) Derived {
	return Derived{
		BackendContainer:   ContainerName(id, RoleBackend),
		WorkerContainer:    ContainerName(id, RoleWorker),
		SchedulerContainer: ContainerName(id, RoleScheduler),
		RedisContainer:     ContainerName(id, RoleRedis),
		RabbitMQContainer:  ContainerName(id, RoleRabbitMQ),
		DBContainer:        ContainerName(id, RoleMariaDB),
		FrontendContainer:  ContainerName(id, RoleFrontend),

		BackendIP:   IPFor(number, RoleBackend),
		WorkerIP:    IPFor(number, RoleWorker),
		SchedulerIP: IPFor(number, RoleScheduler),
		RedisIP:     IPFor(number, RoleRedis),
		RabbitMQIP:  IPFor(number, RoleRabbitMQ),
		MariaDBIP:   IPFor(number, RoleMariaDB),
		FrontendIP:  IPFor(number, RoleFrontend),

		RedisHost:    Hostname(string(RoleRedis), id),
		RabbitMQHost: Hostname(string(RoleRabbitMQ), id),

		URLPath: URLPath(id),
	}
}

// NextGroupNumber returns the number for the next group.
//
// # Description
//
// Returns max(19, highest existing number, highWater) + 1. Groups without a
// number (partial records) are ignored. Including the high-water mark means
// a number freed by removing the newest group is never handed out again.
//
// # Outputs
//
//   - int: the next number, >= MinGroupNumber
//   - error: ErrAddressSpaceExhausted when the result would exceed 255
func NextGroupNumber(groups []Group, highWater int) (int, error) {
	highest := MinGroupNumber - 1
	for _, g := range groups {
		if g.Number > highest {
			highest = g.Number
		}
	}
	if highWater > highest {
		highest = highWater
	}
	next := highest + 1
	if next > MaxGroupNumber {
		return 0, fmt.Errorf("%w: next number would be %d", ErrAddressSpaceExhausted, next)
	}
	return next, nil
}
