// Package wallethandler serves wallet onboarding and wallet management routes.
// Every route acts on the wallet of the authenticated caller only.
package wallethandler
