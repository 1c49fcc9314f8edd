// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Collaborators are injected at construction so every service can be
// exercised with test doubles.
package services
