// Package core expands reaction specifications into dispense plans and
// balances draws across replicate source wells. It performs no I/O.
package core
