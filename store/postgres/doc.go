// Package postgres implements the delivery store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED claiming, lease-based redelivery, embedded SQL
// migrations.
package postgres
