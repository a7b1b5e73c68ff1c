// Package assets mints folders as non-fungible tokens.
//
// Every user gets one NFT collection whose treasury is the user's own account.
// Each folder is a serial of that collection whose metadata is the content id
// of a JSON document kept in the metadata blob store.
package assets
