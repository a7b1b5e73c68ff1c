// Package folderhandler serves the folder NFT routes. Folders are minted from
// a per-user collection; see package assets.
package folderhandler
