package main

import "fmt"

// Role selects which components a process runs.
type Role string

const (
	RoleAll    Role = "all"
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

// ParseRole validates a -role flag value.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAll, RoleAPI, RoleWorker:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (want all, api, or worker)", s)
	}
}

// ServesAPI reports whether the role runs the HTTP server.
func (r Role) ServesAPI() bool { return r == RoleAll || r == RoleAPI }

// RunsWorkers reports whether the role runs the worker pool and sweeper.
func (r Role) RunsWorkers() bool { return r == RoleAll || r == RoleWorker }
