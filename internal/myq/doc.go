// Package myq talks to the garage door cloud account.
//
// Client is the narrow capability the bridge needs: list the account's
// devices and send a door command. HTTPClient implements it over the
// regional JSON endpoints. Session owns the single active client for the
// process and swaps it atomically when the credentials change or when
// repeated refresh failures move the bridge to the next region.
package myq
