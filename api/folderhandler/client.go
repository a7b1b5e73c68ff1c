package folderhandler

import (
	"context"
	"net/http"

	"github.com/ruteri/custodial-wallet-backend/api"
)

// Client calls the folder routes as one user.
type Client struct {
	*api.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{Client: api.NewClient(baseURL, token)}
}

// CreateFolder mints a folder under parentID, or at the top level when
// parentID is empty.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*api.CreateFolderResponse, error) {
	var resp api.CreateFolderResponse
	req := api.CreateFolderRequest{FolderName: name, ParentFolderID: parentID}
	if err := c.Do(ctx, http.MethodPost, "/folders", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) List(ctx context.Context) ([]*api.NFT, error) {
	var resp api.ListNFTsResponse
	if err := c.Do(ctx, http.MethodGet, "/nft/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.NFTs, nil
}

func (c *Client) Tree(ctx context.Context) ([]*api.NFT, error) {
	var resp api.FolderTreeResponse
	if err := c.Do(ctx, http.MethodGet, "/folders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Folders, nil
}

// Metadata fetches the metadata document of the folder with the given id.
func (c *Client) Metadata(ctx context.Context, nftID string) (*MetadataResponse, error) {
	var resp MetadataResponse
	if err := c.Do(ctx, http.MethodGet, "/folders/"+nftID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
