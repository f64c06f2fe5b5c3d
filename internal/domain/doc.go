// Package domain defines core data models, contracts and sentinel errors
// shared across the messaging engine. It contains plain types (wire/state),
// interfaces and the error taxonomy only.
package domain
