// Package core defines the domain model of the Louyass rental back-office.
//
// # Overview
//
// The core package provides:
//   - Domain types (User, House, Room, Appointment, Contract, Payment, ...)
//   - Status enums with validation and lifecycle transition rules
//   - Shared constants (timeouts, pagination bounds)
//   - A Redis-backed cache used for token revocation and hot lookups
//
// # Lifecycle rules
//
// Appointments move en_attente -> confirmé | annulé and confirmé -> annulé.
// A tenant rescheduling an appointment puts it back to en_attente.
// Contracts move actif -> resilié and never back. Payments move
// en_attente -> paye.
//
// Role checks (who may trigger a transition) live in the service package;
// this package only answers whether a transition is legal.
package core
