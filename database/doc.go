// Package database provides the connection layer used by the DAOs: configuration
// types and providers, a factory and manager built on Bun, a model registry for
// table creation, SQL error classification, query hooks and logging.
package database
