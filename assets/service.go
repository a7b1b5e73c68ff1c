package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/metrics"
	"github.com/ruteri/custodial-wallet-backend/wallet"
)

// MaxFolderNameLength is the longest accepted folder name, in characters.
const MaxFolderNameLength = 100

// Config names the per-user folder collections.
type Config struct {
	CollectionName   string
	CollectionSymbol string
}

func DefaultConfig() Config {
	return Config{
		CollectionName:   "Custody Folders",
		CollectionSymbol: "FOLDER",
	}
}

// FolderMetadata is the document a folder NFT points to.
type FolderMetadata struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Parent    string    `json:"parent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CollectionMetadata is the document a collection token memo points to.
type CollectionMetadata struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
}

// Folder is one node of a user's folder tree.
type Folder struct {
	*interfaces.AssetRecord
	Children []*Folder `json:"children"`
}

// Service mints folders as NFTs of a per-user collection. The user's account
// is the collection treasury and the operator key is its supply key.
type Service struct {
	wallets interfaces.WalletStore
	keys    interfaces.KeyStore
	assets  interfaces.AssetStore
	blobs   interfaces.BlobStore
	vault   interfaces.CredentialVault
	ledger  interfaces.TransactionOrchestrator
	cfg     Config
	log     *slog.Logger

	locks [64]sync.Mutex
}

// NewService creates the asset service.
func NewService(wallets interfaces.WalletStore, keys interfaces.KeyStore, assets interfaces.AssetStore, blobs interfaces.BlobStore, vault interfaces.CredentialVault, ledger interfaces.TransactionOrchestrator, cfg Config, log *slog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.CollectionName == "" {
		cfg.CollectionName = defaults.CollectionName
	}
	if cfg.CollectionSymbol == "" {
		cfg.CollectionSymbol = defaults.CollectionSymbol
	}
	return &Service{
		wallets: wallets,
		keys:    keys,
		assets:  assets,
		blobs:   blobs,
		vault:   vault,
		ledger:  ledger,
		cfg:     cfg,
		log:     log,
	}
}

// CreateFolder mints a folder NFT owned by the subject. parentAssetID may be
// empty for a top-level folder.
func (s *Service) CreateFolder(ctx context.Context, subject interfaces.AuthenticatedSubject, name string, parentAssetID string) (*interfaces.AssetRecord, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxFolderNameLength {
		return nil, interfaces.NewError(interfaces.KindInvalidArgument,
			fmt.Sprintf("folder name must be between 1 and %d characters", MaxFolderNameLength), nil)
	}
	log := s.log.With(slog.String("userId", subject.UserID))

	w, err := wallet.ActiveWallet(ctx, s.wallets, subject.UserID)
	if err != nil {
		return nil, err
	}

	if parentAssetID != "" {
		if _, _, err := interfaces.ParseAssetID(parentAssetID); err != nil {
			return nil, interfaces.NewError(interfaces.KindInvalidArgument, "invalid parent folder id", err)
		}
		parent, err := s.assets.GetAsset(ctx, parentAssetID)
		if errors.Is(err, interfaces.ErrRecordNotFound) || (err == nil && parent.OwnerUserID != subject.UserID) {
			return nil, interfaces.NewError(interfaces.KindNotFound, "parent folder not found", nil)
		} else if err != nil {
			return nil, fmt.Errorf("failed to read parent folder: %w", err)
		}
	}

	collection, err := s.ensureCollection(ctx, subject, w, log)
	if err != nil {
		metrics.FolderMinted("collection_failed")
		return nil, err
	}

	doc, err := json.Marshal(FolderMetadata{
		Type:      "folder",
		Name:      name,
		Owner:     w.LedgerAccountID,
		Parent:    parentAssetID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode folder metadata: %w", err)
	}
	metadataID, err := s.blobs.Store(ctx, doc, interfaces.FolderMetadataType)
	if err != nil {
		metrics.FolderMinted("metadata_failed")
		return nil, fmt.Errorf("failed to store folder metadata: %w", err)
	}

	receipt, err := s.ledger.Submit(ctx, subject.UserID, interfaces.TokenMint{
		TokenID:  collection.TokenID,
		Metadata: [][]byte{[]byte(metadataID.String())},
	})
	if err != nil {
		metrics.FolderMinted("mint_failed")
		return nil, err
	}
	if len(receipt.SerialNumbers) != 1 {
		return nil, fmt.Errorf("mint of %s returned %d serials", collection.TokenID, len(receipt.SerialNumbers))
	}

	serial := receipt.SerialNumbers[0]
	rec := &interfaces.AssetRecord{
		AssetID:       interfaces.AssetIDFor(collection.TokenID, serial),
		TokenID:       collection.TokenID,
		SerialNumber:  serial,
		OwnerUserID:   subject.UserID,
		ParentAssetID: parentAssetID,
		Name:          name,
		MetadataID:    metadataID.String(),
		MetadataBlob:  doc,
		CreatedAt:     time.Now().UTC(),
		TxID:          receipt.TxID,
	}
	if err := s.assets.CreateAsset(ctx, rec); err != nil {
		log.Error("Failed to record minted folder",
			"err", err,
			slog.String("assetId", rec.AssetID),
			slog.String("txId", receipt.TxID))
		metrics.FolderMinted("record_failed")
		return nil, fmt.Errorf("failed to record folder %s: %w", rec.AssetID, err)
	}

	metrics.FolderMinted("created")
	log.Info("Folder minted",
		slog.String("assetId", rec.AssetID),
		slog.String("txId", receipt.TxID))
	return rec, nil
}

// ensureCollection returns the user's collection, creating it on first use.
// Creation is serialized per user within the process; a collection created
// concurrently by another process wins and the local token is abandoned.
func (s *Service) ensureCollection(ctx context.Context, subject interfaces.AuthenticatedSubject, w *interfaces.WalletRecord, log *slog.Logger) (*interfaces.CollectionRecord, error) {
	if c, err := s.assets.GetCollection(ctx, subject.UserID); err == nil {
		return c, nil
	} else if !errors.Is(err, interfaces.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}

	mu := s.lockFor(subject.UserID)
	mu.Lock()
	defer mu.Unlock()

	if c, err := s.assets.GetCollection(ctx, subject.UserID); err == nil {
		return c, nil
	}

	doc, err := json.Marshal(CollectionMetadata{
		Type:      "collection",
		Name:      s.cfg.CollectionName,
		Owner:     w.LedgerAccountID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection metadata: %w", err)
	}
	metadataID, err := s.blobs.Store(ctx, doc, interfaces.CollectionMetadataType)
	if err != nil {
		return nil, fmt.Errorf("failed to store collection metadata: %w", err)
	}

	userKey, err := wallet.UnsealUserKey(ctx, s.keys, s.vault, subject.UserID)
	if err != nil {
		return nil, err
	}
	defer cryptoutils.Zero(userKey)

	receipt, err := s.ledger.Submit(ctx, subject.UserID, interfaces.TokenCreate{
		Name:              s.cfg.CollectionName,
		Symbol:            s.cfg.CollectionSymbol,
		Memo:              metadataID.String(),
		NonFungible:       true,
		TreasuryAccountID: w.LedgerAccountID,
		TreasuryKey:       userKey,
	})
	if err != nil {
		return nil, err
	}

	rec := &interfaces.CollectionRecord{
		UserID:     subject.UserID,
		TokenID:    receipt.TokenID,
		MetadataID: metadataID.String(),
		CreatedAt:  time.Now().UTC(),
		TxID:       receipt.TxID,
	}
	if err := s.assets.CreateCollection(ctx, rec); err != nil {
		if !errors.Is(err, interfaces.ErrConditionFailed) {
			return nil, fmt.Errorf("failed to record collection: %w", err)
		}
		log.Warn("Collection created concurrently, abandoning token", slog.String("tokenId", receipt.TokenID))
		return s.assets.GetCollection(ctx, subject.UserID)
	}

	log.Info("Folder collection created",
		slog.String("tokenId", receipt.TokenID),
		slog.String("txId", receipt.TxID))
	return rec, nil
}

func (s *Service) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// ListAssets returns the user's folders ordered by creation.
func (s *Service) ListAssets(ctx context.Context, userID string) ([]*interfaces.AssetRecord, error) {
	assets, err := s.assets.ListAssets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

// Tree returns the user's folders nested under their parents. Folders whose
// parent is unknown are returned at the top level.
func (s *Service) Tree(ctx context.Context, userID string) ([]*Folder, error) {
	assets, err := s.ListAssets(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildTree(assets), nil
}

// BuildTree nests assets by ParentAssetID, keeping siblings in creation order.
func BuildTree(assets []*interfaces.AssetRecord) []*Folder {
	nodes := make(map[string]*Folder, len(assets))
	for _, a := range assets {
		nodes[a.AssetID] = &Folder{AssetRecord: a, Children: []*Folder{}}
	}

	roots := []*Folder{}
	for _, a := range assets {
		node := nodes[a.AssetID]
		if parent, ok := nodes[a.ParentAssetID]; ok && a.ParentAssetID != a.AssetID {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}

	var order func([]*Folder)
	order = func(level []*Folder) {
		sort.SliceStable(level, func(i, j int) bool {
			return level[i].CreatedAt.Before(level[j].CreatedAt)
		})
		for _, n := range level {
			order(n.Children)
		}
	}
	order(roots)
	return roots
}

// Metadata returns the folder document of one of the user's assets, read
// back from the metadata store and checked against the recorded content id.
func (s *Service) Metadata(ctx context.Context, userID, assetID string) (*FolderMetadata, error) {
	rec, err := s.assets.GetAsset(ctx, assetID)
	if errors.Is(err, interfaces.ErrRecordNotFound) || (err == nil && rec.OwnerUserID != userID) {
		return nil, interfaces.NewError(interfaces.KindNotFound, "folder not found", nil)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	id, err := interfaces.NewContentIDFromHex(rec.MetadataID)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata id on %s: %w", assetID, err)
	}

	data, err := s.blobs.Fetch(ctx, id, interfaces.FolderMetadataType)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		// The registry keeps a copy of every document it recorded.
		s.log.Warn("Folder metadata missing from store, serving recorded copy", slog.String("assetId", assetID))
		data = rec.MetadataBlob
	} else if err != nil {
		return nil, fmt.Errorf("failed to fetch folder metadata: %w", err)
	}
	if interfaces.ComputeID(data) != id {
		return nil, fmt.Errorf("folder metadata of %s does not match its content id", assetID)
	}

	var doc FolderMetadata
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode folder metadata: %w", err)
	}
	return &doc, nil
}
