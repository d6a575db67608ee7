// Package fixture holds the shared test fixtures of the backend suites:
// environment configuration, generated users and a SQLite user store.
package fixture
