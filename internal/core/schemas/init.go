// Package schemas registers the importable entity schemas with the core registry.
// Import this package for its side effects to make every schema available.
package schemas

// Each schema file uses init() to register itself.
