/*
custody-server serves the custodial wallet API.

Every option can also be set through a CUSTODY_ environment variable, e.g.
CUSTODY_REGISTRY_URI. The operator credential must have been imported with
custodyctl before the first start.

Example:

	VAULT_TOKEN=... custody-server \
		--network testnet \
		--registry-uri dynamodb://eu-west-1/custody \
		--metadata-uri s3://custody-metadata/folders?region=eu-west-1 \
		--kms-provider vault --kms-key-ref custody-wallets \
		--jwt-secret "$JWT_SECRET" --jwt-issuer https://id.example.com \
		--reward-token-id 0.0.4815162
*/
package main
