// Package rewardhandler serves reward issuance and reward history.
package rewardhandler
