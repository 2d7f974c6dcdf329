package wallet

import (
	"io"

	"github.com/tolelom/battlechain/commitment"
	"github.com/tolelom/battlechain/core"
	"github.com/tolelom/battlechain/crypto"
)

// Wallet holds a key pair and signs transactions for it. The hex public
// key is the account on chain.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a fresh key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// GenerateFrom derives the key pair from r.
func GenerateFrom(r io.Reader) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPairFrom(r)
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key.
func (w *Wallet) PrivKey() crypto.PrivateKey { return w.priv }

// PubKey returns the hex public key, the "from" of every transaction.
func (w *Wallet) PubKey() string { return w.pub.Hex() }

// Address returns the short 0x display form of the account.
func (w *Wallet) Address() string { return w.pub.Address() }

// NewTx builds and signs a transaction. nonce must be the account's
// current nonce for the tx to execute.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.PubKey(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

func (w *Wallet) Transfer(chainID, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{To: to, Amount: amount})
}

// CreateGame escrows bet behind the board commitment com.
func (w *Wallet) CreateGame(chainID string, com commitment.Commitment, bet, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxCreateGame, nonce, fee, core.CreateGamePayload{
		Bet:        bet,
		MerkleRoot: com.MerkleRoot,
		ShipsHash:  com.ShipsHash,
	})
}

func (w *Wallet) JoinGame(chainID string, gameID uint64, com commitment.Commitment, bet, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxJoinGame, nonce, fee, core.JoinGamePayload{
		GameID:     gameID,
		Bet:        bet,
		MerkleRoot: com.MerkleRoot,
		ShipsHash:  com.ShipsHash,
	})
}

// LaunchTorpedo signs a move. A nil proof is sent as an empty list, which
// is what the opening move carries.
func (w *Wallet) LaunchTorpedo(chainID string, p core.LaunchTorpedoPayload, nonce, fee uint64) (*core.Transaction, error) {
	if p.Proof == nil {
		p.Proof = []commitment.Hash{}
	}
	return w.NewTx(chainID, core.TxLaunchTorpedo, nonce, fee, p)
}

func (w *Wallet) ConfirmLegitWin(chainID string, p core.ConfirmLegitWinPayload, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxConfirmLegitWin, nonce, fee, p)
}

func (w *Wallet) QuitGame(chainID string, gameID, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxQuitGame, nonce, fee, core.GameRefPayload{GameID: gameID})
}

func (w *Wallet) CloseGame(chainID string, gameID, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxCloseGame, nonce, fee, core.GameRefPayload{GameID: gameID})
}
