package gateways

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/orris-inc/paygate/internal/infrastructure/credentials"
	"github.com/orris-inc/paygate/internal/infrastructure/database"
	"github.com/orris-inc/paygate/internal/interfaces/cli/bootstrap"
)

var (
	env        string
	configPath string
	filePath   string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateways",
		Short: "Manage gateway identities",
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.PersistentFlags().StringVarP(&filePath, "file", "f", "", "Gateways YAML file (default: gateways.file_path)")

	cmd.AddCommand(newListCommand(), newImportCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List gateways in the YAML file without their secrets",
		RunE:  runList,
	}
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Seal the YAML gateways into the payment_gateways table",
		Long: `Copy every gateway of the YAML file into the database, encrypting
credentials with gateways.encryption_key. Existing rows are updated.`,
		RunE: runImport,
	}
}

func fileStore(e *bootstrap.Env) *credentials.FileStore {
	path := filePath
	if path == "" {
		path = e.Config.Gateways.FilePath
	}
	return credentials.NewFileStore(path)
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := bootstrap.Load(env, configPath)
	if err != nil {
		return err
	}

	entries, err := fileStore(e).Load()
	if err != nil {
		return err
	}
	codes := make([]string, 0, len(entries))
	for code := range entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tMODE\tENABLED\tCREDENTIALS")
	for _, code := range codes {
		entry := entries[code]
		fmt.Fprintf(w, "%s\t%s\t%t\t%d keys\n", code, entry.Mode, entry.Enabled, len(entry.Credentials))
	}
	return w.Flush()
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := bootstrap.Load(env, configPath)
	if err != nil {
		return err
	}
	sealer, err := credentials.NewSealer(e.Config.Gateways.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid gateways.encryption_key: %w", err)
	}
	if err := e.OpenDatabase(); err != nil {
		return err
	}
	defer database.Close()

	store := credentials.NewDBStore(database.Get(), sealer, e.Log.Named("credentials"))
	codes, err := store.ImportFile(cmd.Context(), fileStore(e))
	if err != nil {
		return fmt.Errorf("import stopped after %v: %w", codes, err)
	}

	sort.Strings(codes)
	e.Log.Infow("gateways imported", "codes", codes)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d gateways: %v\n", len(codes), codes)
	return nil
}
