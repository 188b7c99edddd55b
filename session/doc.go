// Package session persists refresh-session records, the server-side half of
// the refresh token's authority. Three [Store] implementations are provided:
// [RedisStore] for production single-key lookups, [PostgresStore] for
// deployments that keep sessions next to the relational data, and
// [MemoryStore] for tests.
package session
