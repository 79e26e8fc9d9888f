/*
Package payment decodes and redeems cashu ecash tokens, enforcing
at-most-once redemption for the Provider.

The actual mint protocol and wallet state are an external collaborator: this package defines a
Wallet interface and drives it through the same sequence the original
does — decode, verify amount, verify mint whitelist,
check-already-redeemed, receive, record — leaving the token format itself to whatever
Wallet implementation is wired in.
*/
package payment
