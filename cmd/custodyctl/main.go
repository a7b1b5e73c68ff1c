package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/ruteri/custodial-wallet-backend/auth"
	"github.com/ruteri/custodial-wallet-backend/cmd/flags"
	"github.com/ruteri/custodial-wallet-backend/cryptoutils"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/kms"
	"github.com/ruteri/custodial-wallet-backend/ledger"
	"github.com/ruteri/custodial-wallet-backend/rewards"
	"github.com/ruteri/custodial-wallet-backend/storage"
	"github.com/ruteri/custodial-wallet-backend/wallet"
	"github.com/urfave/cli/v2"
)

var (
	flagAccountID = &cli.StringFlag{
		Name:     "account-id",
		Required: true,
		Usage:    "operator account id, e.g. 0.0.1234",
	}
	flagOperatorKey = &cli.StringFlag{
		Name:     "private-key",
		Required: true,
		EnvVars:  []string{"CUSTODY_OPERATOR_KEY"},
		Usage:    "hex encoded operator private key",
	}
	flagKeyAlgorithm = &cli.StringFlag{
		Name:  "key-algorithm",
		Value: interfaces.KeyAlgorithmECDSASecp256k1,
		Usage: "operator key algorithm",
	}
	flagUserID = &cli.StringFlag{
		Name:     "user-id",
		Required: true,
		Usage:    "user whose wallet to act on",
	}
	flagIdentityFile = &cli.StringFlag{
		Name:     "identity-file",
		Required: true,
		Usage:    "age identity file",
	}
)

func main() {
	app := &cli.App{
		Name:  "custodyctl",
		Usage: "Administer the custodial wallet backend",
		Commands: []*cli.Command{
			{
				Name:  "operator",
				Usage: "manage the operator credential",
				Subcommands: []*cli.Command{
					{
						Name:   "import",
						Usage:  "seal and store the operator account key",
						Flags:  backendFlags(flagAccountID, flagOperatorKey, flagKeyAlgorithm),
						Action: importOperator,
					},
				},
			},
			{
				Name:  "token",
				Usage: "manage the reward token",
				Subcommands: []*cli.Command{
					{
						Name:  "create",
						Usage: "create the fungible reward token with the operator as treasury",
						Flags: backendFlags(
							&cli.StringFlag{Name: "name", Value: "Custody Reward"},
							&cli.StringFlag{Name: "symbol", Value: "CRW"},
							&cli.UintFlag{Name: "decimals", Value: 2},
							&cli.Uint64Flag{Name: "supply", Value: 1_000_000_000, Usage: "initial supply in whole tokens"},
							&cli.StringFlag{Name: "memo"},
						),
						Action: createToken,
					},
				},
			},
			{
				Name:  "wallet",
				Usage: "inspect and repair wallets",
				Subcommands: []*cli.Command{
					{
						Name:   "reconcile",
						Usage:  "resolve a pending wallet against the ledger",
						Flags:  backendFlags(flagUserID),
						Action: reconcileWallet,
					},
				},
			},
			{
				Name:  "escrow",
				Usage: "split an age identity into Shamir shares and back",
				Subcommands: []*cli.Command{
					{
						Name:  "keygen",
						Usage: "generate a new age identity",
						Flags: []cli.Flag{&cli.StringFlag{Name: "out", Required: true}},
						Action: func(cCtx *cli.Context) error {
							identity, err := age.GenerateX25519Identity()
							if err != nil {
								return err
							}
							return writeIdentity(cCtx.String("out"), identity)
						},
					},
					{
						Name:  "split",
						Usage: "print threshold-of-shares Shamir shares of an identity, one per line",
						Flags: []cli.Flag{
							flagIdentityFile,
							&cli.IntFlag{Name: "threshold", Value: 2},
							&cli.IntFlag{Name: "shares", Value: 3},
						},
						Action: splitIdentity,
					},
					{
						Name:  "combine",
						Usage: "rebuild an identity from shares read from stdin",
						Flags: []cli.Flag{&cli.StringFlag{Name: "out", Required: true}},
						Action: func(cCtx *cli.Context) error {
							var shares []string
							scanner := bufio.NewScanner(os.Stdin)
							for scanner.Scan() {
								if line := strings.TrimSpace(scanner.Text()); line != "" {
									shares = append(shares, line)
								}
							}
							if err := scanner.Err(); err != nil {
								return err
							}
							identity, err := kms.CombineIdentity(shares)
							if err != nil {
								return err
							}
							return writeIdentity(cCtx.String("out"), identity)
						},
					},
				},
			},
			{
				Name:  "auth",
				Usage: "development helpers",
				Subcommands: []*cli.Command{
					{
						Name:  "token",
						Usage: "issue a bearer token for a subject",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "jwt-secret", Required: true, EnvVars: []string{"CUSTODY_JWT_SECRET"}},
							&cli.StringFlag{Name: "jwt-issuer", EnvVars: []string{"CUSTODY_JWT_ISSUER"}},
							&cli.StringFlag{Name: "jwt-audience", EnvVars: []string{"CUSTODY_JWT_AUDIENCE"}},
							&cli.StringFlag{Name: "subject", Required: true},
							&cli.StringFlag{Name: "email"},
							&cli.DurationFlag{Name: "ttl", Value: time.Hour},
						},
						Action: func(cCtx *cli.Context) error {
							token, err := auth.IssueToken(auth.Config{
								HMACSecret: cCtx.String("jwt-secret"),
								Issuer:     cCtx.String("jwt-issuer"),
								Audience:   cCtx.String("jwt-audience"),
							}, interfaces.AuthenticatedSubject{
								UserID: cCtx.String("subject"),
								Email:  cCtx.String("email"),
							}, cCtx.Duration("ttl"))
							if err != nil {
								return err
							}
							fmt.Println(token)
							return nil
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func backendFlags(extra ...cli.Flag) []cli.Flag {
	out := append([]cli.Flag{}, flags.CommonFlags...)
	out = append(out, flags.BackendFlags...)
	return append(out, extra...)
}

func importOperator(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	vault, err := flags.OpenVault(cCtx, logger)
	if err != nil {
		return err
	}
	registry, err := flags.OpenRegistry(cCtx, storage.NewStorageBackendFactory(logger))
	if err != nil {
		return err
	}
	defer registry.Close()

	key, err := hex.DecodeString(strings.TrimPrefix(cCtx.String(flagOperatorKey.Name), "0x"))
	if err != nil {
		return fmt.Errorf("private key must be hex encoded: %w", err)
	}
	defer cryptoutils.Zero(key)

	err = ledger.ImportOperator(cCtx.Context, registry.Keys, vault, cCtx.String(flags.KMSKeyRefFlag.Name), ledger.OperatorIdentity{
		AccountID:    cCtx.String(flagAccountID.Name),
		PrivateKey:   key,
		KeyAlgorithm: cCtx.String(flagKeyAlgorithm.Name),
	})
	if err != nil {
		return err
	}

	// Prove the stored credential opens a session.
	sessions, _ := flags.OpenLedger(cCtx, registry.Keys, vault, logger)
	defer sessions.Close()
	client, err := sessions.Session(cCtx.Context)
	if err != nil {
		return fmt.Errorf("operator stored but session failed: %w", err)
	}
	logger.Info("Operator credential imported", "accountId", client.OperatorAccountID(), "network", client.Network())
	return nil
}

func createToken(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	vault, err := flags.OpenVault(cCtx, logger)
	if err != nil {
		return err
	}
	registry, err := flags.OpenRegistry(cCtx, storage.NewStorageBackendFactory(logger))
	if err != nil {
		return err
	}
	defer registry.Close()

	sessions, orchestrator := flags.OpenLedger(cCtx, registry.Keys, vault, logger)
	defer sessions.Close()

	tokenID, err := rewards.CreateToken(cCtx.Context, orchestrator, rewards.TokenSpec{
		Name:          cCtx.String("name"),
		Symbol:        cCtx.String("symbol"),
		Decimals:      cCtx.Uint("decimals"),
		InitialSupply: cCtx.Uint64("supply"),
		Memo:          cCtx.String("memo"),
	})
	if err != nil {
		return err
	}
	logger.Info("Reward token created", "tokenId", tokenID)
	fmt.Println(tokenID)
	return nil
}

func reconcileWallet(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	vault, err := flags.OpenVault(cCtx, logger)
	if err != nil {
		return err
	}
	registry, err := flags.OpenRegistry(cCtx, storage.NewStorageBackendFactory(logger))
	if err != nil {
		return err
	}
	defer registry.Close()

	sessions, orchestrator := flags.OpenLedger(cCtx, registry.Keys, vault, logger)
	defer sessions.Close()

	provisioner := wallet.NewProvisioner(registry.Wallets, registry.Keys, vault, orchestrator, wallet.Config{
		KeyRef: cCtx.String(flags.KMSKeyRefFlag.Name),
	}, logger)
	rec, err := provisioner.Reconciler().Reconcile(cCtx.Context, cCtx.String(flagUserID.Name))
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no wallet for user %s", cCtx.String(flagUserID.Name))
	}

	rec.PendingKey = nil
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func splitIdentity(cCtx *cli.Context) error {
	data, err := os.ReadFile(cCtx.String(flagIdentityFile.Name))
	if err != nil {
		return err
	}
	identity, err := kms.ParseIdentity(string(data))
	if err != nil {
		return err
	}
	shares, err := kms.SplitIdentity(identity, cCtx.Int("threshold"), cCtx.Int("shares"))
	if err != nil {
		return err
	}
	for _, share := range shares {
		fmt.Println(share)
	}
	return nil
}

func writeIdentity(path string, identity *age.X25519Identity) error {
	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().UTC().Format(time.RFC3339), identity.Recipient(), identity)
	return os.WriteFile(path, []byte(content), 0o600)
}
