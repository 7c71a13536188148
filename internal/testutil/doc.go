// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when scripting runtime message sequences and
// collecting emitted chunks. These helpers are intentionally minimal and are
// not intended for production usage.
package testutil
