// README: Common money value object used across modules.
package types

// Money is an integer amount in the currency's smallest unit (cents).
type Money struct {
	Amount   int64
	Currency string
}
