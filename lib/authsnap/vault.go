package authsnap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("repeatbot.lib.authsnap")

const (
	vaultKeyFile      = "master.key"
	vaultSnapshotFile = "snapshot.json"
)

// Vault keeps a snapshot encrypted at rest under a passphrase derived
// master key.
type Vault struct {
	dir   string
	store *storage.Storage
}

// OpenVault opens (or initializes) the vault in dir. A new master key is
// created the first time a directory is used.
func OpenVault(dir, passphrase string) (Vault, error) {
	if passphrase == "" {
		return Vault{}, fmt.Errorf("vault passphrase is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Vault{}, err
	}

	keyFile := filepath.Join(dir, vaultKeyFile)
	masterKey, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("initializing new vault key", "dir", dir)
		masterKey, err = crypto.CreateMasterKey()
		if err != nil {
			return Vault{}, fmt.Errorf("create master key: %w", err)
		}
		if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
			return Vault{}, fmt.Errorf("save master key: %w", err)
		}
	} else if err != nil {
		return Vault{}, fmt.Errorf("read master key: %w", err)
	}

	store := storage.New(dir, masterKey)
	store.EnableCompression(true)
	return Vault{dir: dir, store: store}, nil
}

// VaultExists reports whether dir holds an initialized vault.
func VaultExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, vaultKeyFile))
	return err == nil
}

func (v Vault) Save(ctx context.Context, s Snapshot) error {
	_, span := tracer.Start(ctx, "Vault.Save")
	defer span.End()

	if err := v.store.SaveDataFile(vaultSnapshotFile, s); err != nil {
		span.RecordError(err)
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// Load returns os.ErrNotExist (wrapped) when nothing has been saved yet.
func (v Vault) Load(ctx context.Context) (Snapshot, error) {
	_, span := tracer.Start(ctx, "Vault.Load")
	defer span.End()

	var s Snapshot
	if err := v.store.ReadDataFile(vaultSnapshotFile, &s); err != nil {
		span.RecordError(err)
		return Snapshot{}, fmt.Errorf("storage.ReadDataFile: %w", err)
	}
	return s, nil
}
