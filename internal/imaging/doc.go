// Package imaging compresses and converts uploaded images before they are
// downloaded or sent to a backend.
package imaging
