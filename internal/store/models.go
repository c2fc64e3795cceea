// Package store is the Persistence layer: two entity repositories
// (Executors, Users) over Postgres via pgx, plus the optimistic-concurrency
// primitives the Client Pool and Outreach Scheduler depend on.
package store

import "time"

// ExecutorStatus is the closed set of values spec.md's data model names for
// Executor.status.
type ExecutorStatus string

const (
	StatusActive             ExecutorStatus = "active"
	StatusDisconnected       ExecutorStatus = "disconnected"
	StatusLimited            ExecutorStatus = "limited"
	StatusForbidden          ExecutorStatus = "forbidden"
	StatusError              ExecutorStatus = "error"
	StatusProxyOrAuthFailed  ExecutorStatus = "proxy_or_auth_failed"
)

// Proxy is the optional proxy descriptor attached to an Executor.
type Proxy struct {
	Scheme   string
	Host     string
	Port     int
	User     string
	Password string
}

// Executor is one outbound Telegram account.
type Executor struct {
	ExecutorID      int64
	Name            string
	APICredentials  string // opaque pair, stored as a single serialized blob
	SessionBlob     string // opaque credential allowing re-login without interactive code
	Status          ExecutorStatus
	UsersTotal      int
	ActiveUsers     int
	LastMessageTS   time.Time
	Proxy           *Proxy
}

// User is one conversation target ("prospect").
type User struct {
	UserID         int64
	ExecutorID     *int64
	AccessHash     *int64
	Username       string
	Phone          string
	DisplayName    string
	Info           string
	Contact        bool
	Banned         bool
	CRM            bool
	ConversationID string
	Summary        string
	LastMessageTS  time.Time
	ProblemsCount  int
	Problem        bool
}

// ProblemThreshold is the resolved Open Question from spec.md §9: the
// original source confused 5 vs 10 across files; spec.md fixes it at 5.
const ProblemThreshold = 5

// GreetCandidate is one row returned by PopUsersToGreet.
type GreetCandidate struct {
	UserID     int64
	ExecutorID int64
	AccessHash int64
}
