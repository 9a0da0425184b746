package commands

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"repeatbot/lib/authsnap"
	"repeatbot/lib/util/serviceutil"
	"repeatbot/services/tourney"

	crerr "github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var vaultFile *string

// readEncoded returns the encoded value from an export file or raw input.
// Comment lines written by the exporter are ignored.
func readEncoded(r io.Reader) (string, error) {
	var value string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*authsnap.DefaultBudget)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		value = line
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if value == "" {
		return "", crerr.New("no encoded session found in input")
	}
	return value, nil
}

func openVault(cfg tourney.Config) authsnap.Vault {
	vault, err := authsnap.OpenVault(cfg.Auth.VaultDir, cfg.Auth.VaultKey)
	if err != nil {
		serviceutil.Fatal("failed to open vault", crerr.WithHint(err, "set REPEATBOT_VAULT_KEY to the vault passphrase"))
	}
	return vault
}

func maskValue(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", 8)
}

func formatExpiry(c authsnap.Cookie) string {
	at, ok := c.ExpiresAt()
	if !ok {
		return "session"
	}
	if at.Before(time.Now()) {
		return at.Format(time.DateOnly) + " (expired)"
	}
	return at.Format(time.DateOnly)
}

func renderSnapshot(w io.Writer, snap authsnap.Snapshot) {
	cookies := table.NewWriter()
	cookies.SetOutputMirror(w)
	cookies.SetTitle("Cookies")
	cookies.SetStyle(table.StyleRounded)
	cookies.AppendHeader(table.Row{"Domain", "Name", "Value", "Expires", "Secure", "HttpOnly"})
	for _, c := range snap.Cookies {
		cookies.AppendRow(table.Row{c.Domain, c.Name, maskValue(c.Value), formatExpiry(c), c.Secure, c.HTTPOnly})
	}
	cookies.Render()

	storage := table.NewWriter()
	storage.SetOutputMirror(w)
	storage.SetTitle("Storage")
	storage.SetStyle(table.StyleRounded)
	storage.AppendHeader(table.Row{"Storage", "Key", "Bytes"})
	for _, kind := range []struct {
		name  string
		items map[string]string
	}{
		{"localStorage", snap.LocalStorage},
		{"sessionStorage", snap.SessionStorage},
	} {
		keys := make([]string, 0, len(kind.items))
		for k := range kind.items {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			storage.AppendRow(table.Row{kind.name, k, len(kind.items[k])})
		}
	}
	storage.Render()
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Keep an exported session encrypted on this machine.",
}

var vaultPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Store a session from --file, " + authSecretName + " or stdin.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		var (
			encoded string
			err     error
		)
		switch {
		case *vaultFile != "":
			f, openErr := os.Open(*vaultFile)
			if openErr != nil {
				serviceutil.Fatal("failed to open input", openErr)
			}
			defer f.Close()
			encoded, err = readEncoded(f)
		case cfg.Auth.Data != "":
			encoded = cfg.Auth.Data
		default:
			encoded, err = readEncoded(cmd.InOrStdin())
		}
		if err != nil {
			serviceutil.Fatal("failed to read session", err)
		}

		snap, err := authsnap.Decode(encoded)
		if err != nil {
			serviceutil.Fatal("failed to decode session", crerr.WithHint(err, "use the output of `repeatbot export auth`"))
		}
		if err := openVault(cfg).Save(ctx, snap); err != nil {
			serviceutil.Fatal("failed to save session", err)
		}
		slog.Info("stored session in vault", "dir", cfg.Auth.VaultDir, "cookies", len(snap.Cookies))
	},
}

var vaultShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List what the vault holds, with cookie values masked.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		if !authsnap.VaultExists(cfg.Auth.VaultDir) {
			serviceutil.Fatal("no vault", crerr.WithHint(
				fmt.Errorf("%s holds no vault", cfg.Auth.VaultDir),
				"store a session with `repeatbot vault put` or `repeatbot export auth --vault`",
			))
		}
		snap, err := openVault(cfg).Load(ctx)
		if err != nil {
			serviceutil.Fatal("failed to read vault", err)
		}
		renderSnapshot(cmd.OutOrStdout(), snap)
	},
}

func init() {
	vaultFile = vaultPutCmd.Flags().String("file", "", "Export file or raw encoded session to read.")

	vaultCmd.AddCommand(vaultPutCmd)
	vaultCmd.AddCommand(vaultShowCmd)
	rootCmd.AddCommand(vaultCmd)
}
