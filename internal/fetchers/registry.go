// internal/fetchers/registry.go
package fetchers

import (
	"database/sql"
	"time"

	"github.com/FairForge/navaccel/internal/prefetch"
)

// Dashboard queries
const (
	balanceQuery = `SELECT currency, available, pending FROM balances WHERE user_id = $1`

	recentTransactionsQuery = `SELECT id, kind, amount, currency, created_at
FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 10`

	transactionPageQuery = `SELECT id, kind, amount, currency, created_at
FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 25 OFFSET $2`

	payoutMethodsQuery = `SELECT id, label, kind FROM payout_methods WHERE user_id = $1 AND active`

	agentQueueQuery = `SELECT id, user_id, subject, opened_at FROM support_tickets
WHERE status = 'open' ORDER BY opened_at LIMIT 50`

	usersQuery = `SELECT id, email, role, created_at FROM users ORDER BY created_at DESC LIMIT 50`
)

// DashboardRequirements returns the data each dashboard route reads from db
func DashboardRequirements(db *sql.DB) map[string][]prefetch.Fetcher {
	userArgs := ParamArgs("user_id")

	balance := &QueryFetcher{DB: db, Key: "balance", Query: balanceQuery, StaleTime: 30 * time.Second, Args: userArgs}
	recent := &QueryFetcher{DB: db, Key: "recent_transactions", Query: recentTransactionsQuery, StaleTime: time.Minute, Args: userArgs}
	page := &QueryFetcher{DB: db, Key: "transactions", Query: transactionPageQuery, StaleTime: time.Minute, Args: ParamArgs("user_id", "offset")}
	payouts := &QueryFetcher{DB: db, Key: "payout_methods", Query: payoutMethodsQuery, StaleTime: 10 * time.Minute, Args: userArgs}
	tickets := &QueryFetcher{DB: db, Key: "tickets", Query: agentQueueQuery, StaleTime: 15 * time.Second}
	users := &QueryFetcher{DB: db, Key: "users", Query: usersQuery, StaleTime: 2 * time.Minute}

	return map[string][]prefetch.Fetcher{
		"/dashboard":              {balance.Fetcher(), recent.Fetcher()},
		"/dashboard/deposit":      {balance.Fetcher(), payouts.Fetcher()},
		"/dashboard/withdraw":     {balance.Fetcher(), payouts.Fetcher()},
		"/dashboard/transactions": {page.Fetcher()},
		"/agent/queue":            {tickets.Fetcher()},
		"/admin/users":            {users.Fetcher()},
	}
}
