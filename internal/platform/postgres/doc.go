// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store and internal/queue
// packages. It handles the details of query execution and data mapping
// between domain entities, job records, and database rows.
package postgres
