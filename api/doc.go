/*
Package api holds the HTTP surface shared by the custody handlers: request
and response types, the error envelope and the mapping from error kinds to
HTTP status codes.

Handlers live in subpackages:

  - wallethandler - wallet onboarding, lookup, balance and deletion
  - folderhandler - folder NFT minting and listing
  - rewardhandler - reward issuance and history

Each subpackage also ships a thin client for its routes.

# Errors

Every failure is answered with

	{"success": false, "error": "<message>", "code": "<KIND>"}

where code is the interfaces.ErrorKind of the failure and error is its
client-safe message. Untyped failures are reported as INTERNAL_ERROR and
their details only reach the log.
*/
package api
