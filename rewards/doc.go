// Package rewards pays utility-token rewards for user activity.
//
// The reward of an event is its scheduled rate times the caller-supplied
// multiplier. Tokens move from the operator treasury to the user's account;
// the account is associated with the token on its first reward.
package rewards
