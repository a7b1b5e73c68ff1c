package folderhandler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/assets"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
)

// FolderService is the asset service with metadata read-back.
type FolderService interface {
	interfaces.AssetService
	Metadata(ctx context.Context, userID, assetID string) (*assets.FolderMetadata, error)
}

// MetadataResponse is the body of GET /folders/{tokenId}/{serial}.
type MetadataResponse struct {
	Success  bool                   `json:"success"`
	NFTID    string                 `json:"nftId"`
	Metadata *assets.FolderMetadata `json:"metadata"`
}

// Handler serves folder NFT routes for the authenticated user.
type Handler struct {
	folders FolderService
	log     *slog.Logger
}

func NewHandler(folders FolderService, log *slog.Logger) *Handler {
	return &Handler{
		folders: folders,
		log:     log,
	}
}

// RegisterRoutes configures r with the folder endpoints:
//   - POST /nft/create, POST /folders - mint a folder
//   - GET /nft/list - flat list of the user's folders
//   - GET /folders - the user's folders as a tree
//   - GET /folders/{tokenId}/{serial} - the metadata document of one folder
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/nft/create", h.HandleCreate)
	r.Post("/folders", h.HandleCreate)
	r.Get("/nft/list", h.HandleList)
	r.Get("/folders", h.HandleTree)
	r.Get("/folders/{tokenId}/{serial}", h.HandleMetadata)
}

// HandleCreate mints a folder NFT.
//
// Request: JSON-encoded api.CreateFolderRequest
//
// Status codes:
//   - 200 OK: folder minted
//   - 400 Bad Request: missing or oversized folder name, malformed parent id
//   - 404 Not Found: no active wallet, or unknown parent folder
//   - 409 Conflict / 402 Payment Required: the ledger rejected the mint
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	var req api.CreateFolderRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	rec, err := h.folders.CreateFolder(r.Context(), subject, req.FolderName, req.ParentFolderID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.CreateFolderResponse{
		Success:       true,
		TokenID:       rec.TokenID,
		NFTID:         rec.AssetID,
		SerialNumber:  rec.SerialNumber,
		TransactionID: rec.TxID,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	records, err := h.folders.ListAssets(r.Context(), subject.UserID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	nfts := make([]*api.NFT, 0, len(records))
	for _, rec := range records {
		nfts = append(nfts, api.NewNFT(rec))
	}
	api.WriteJSON(w, http.StatusOK, api.ListNFTsResponse{Success: true, NFTs: nfts})
}

func (h *Handler) HandleTree(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	records, err := h.folders.ListAssets(r.Context(), subject.UserID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.FolderTreeResponse{Success: true, Folders: toNFTs(assets.BuildTree(records))})
}

func (h *Handler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.RequireSubject(w, r, h.log)
	if !ok {
		return
	}

	assetID := chi.URLParam(r, "tokenId") + "/" + chi.URLParam(r, "serial")
	if _, _, err := interfaces.ParseAssetID(assetID); err != nil {
		api.WriteError(w, h.log, interfaces.NewError(interfaces.KindInvalidArgument, "invalid folder id", err))
		return
	}

	doc, err := h.folders.Metadata(r.Context(), subject.UserID, assetID)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, MetadataResponse{Success: true, NFTID: assetID, Metadata: doc})
}

func toNFTs(level []*assets.Folder) []*api.NFT {
	out := make([]*api.NFT, 0, len(level))
	for _, folder := range level {
		nft := api.NewNFT(folder.AssetRecord)
		nft.Children = toNFTs(folder.Children)
		out = append(out, nft)
	}
	return out
}
