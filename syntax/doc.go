// Package syntax validates the string identifiers handled by the identity service.
package syntax
