package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/realmsync/realmsync/internal/cli/output"
	"github.com/realmsync/realmsync/pkg/config"
	"github.com/realmsync/realmsync/pkg/identity/models"
	"github.com/realmsync/realmsync/pkg/identity/store"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage realm sources",
	Long:  `Create, list, and manage the Kerberos realm sources synced into the identity store.`,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List realm sources",
	RunE:  runSourceList,
}

var (
	createRealm             string
	createSyncPrincipal     string
	createSyncPassword      string
	createSyncKeytab        string
	createSyncCCache        string
	createLDAPURL           string
	createLDAPBaseDN        string
	createUserPath          string
	createKrb5ConfPath      string
	createGuessEmail        bool
	createServicePrincipals bool
	createDisabled          bool
	createMappings          []string
)

var sourceCreateCmd = &cobra.Command{
	Use:   "create <slug>",
	Short: "Create a realm source",
	Long: `Create a realm source in the identity store.

Exactly one credential should be provided: --sync-password,
--sync-keytab (a TYPE:residual reference or a base64-encoded keytab), or
--sync-ccache (a TYPE:residual reference).

Examples:
  realmsync source create corp \
    --realm CORP.EXAMPLE \
    --sync-principal sync/admin@CORP.EXAMPLE \
    --sync-password hunter2 \
    --ldap-url ldaps://dc1.corp.example \
    --ldap-base-dn cn=CORP.EXAMPLE,cn=kerberos,dc=corp,dc=example`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceCreate,
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable <slug>",
	Short: "Enable a realm source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSourceEnabled(cmd, args[0], true)
	},
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable <slug>",
	Short: "Disable a realm source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSourceEnabled(cmd, args[0], false)
	},
}

var sourceDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a realm source",
	Long: `Delete a realm source.

Identities created from the source are kept; only the source record and
its links are removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceDelete,
}

func init() {
	flags := sourceCreateCmd.Flags()
	flags.StringVar(&createRealm, "realm", "", "Kerberos realm name (required, e.g. CORP.EXAMPLE)")
	flags.StringVar(&createSyncPrincipal, "sync-principal", "", "principal used to enumerate the realm")
	flags.StringVar(&createSyncPassword, "sync-password", "", "password for the sync principal")
	flags.StringVar(&createSyncKeytab, "sync-keytab", "", "keytab reference or base64-encoded keytab")
	flags.StringVar(&createSyncCCache, "sync-ccache", "", "credential cache reference (TYPE:residual)")
	flags.StringVar(&createLDAPURL, "ldap-url", "", "LDAP endpoint of the realm's backing directory")
	flags.StringVar(&createLDAPBaseDN, "ldap-base-dn", "", "base DN for principal enumeration")
	flags.StringVar(&createUserPath, "user-path", "", "path assigned to created identities")
	flags.StringVar(&createKrb5ConfPath, "krb5-conf", "", "file with a custom krb5.conf for this source")
	flags.BoolVar(&createGuessEmail, "guess-email", false, "derive email addresses from principal names")
	flags.BoolVar(&createServicePrincipals, "sync-service-principals", true, "sync service principals as service accounts")
	flags.BoolVar(&createDisabled, "disabled", false, "create the source disabled")
	flags.StringSliceVar(&createMappings, "property-mapping", nil, "property mapping names, in evaluation order")
	_ = sourceCreateCmd.MarkFlagRequired("realm")

	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceCreateCmd)
	sourceCmd.AddCommand(sourceEnableCmd)
	sourceCmd.AddCommand(sourceDisableCmd)
	sourceCmd.AddCommand(sourceDeleteCmd)
}

// openStore loads config and opens the identity store for the source
// management commands, which do not need the full sync runtime.
func openStore() (*store.GORMStore, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}
	return st, nil
}

func runSourceList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sources, err := st.ListSources(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	if len(sources) == 0 {
		fmt.Println("No sources configured.")
		return nil
	}

	table := sourceTable{}
	for _, source := range sources {
		links, err := st.CountLinks(cmd.Context(), source.ID)
		if err != nil {
			return err
		}
		table.rows = append(table.rows, []string{
			source.Slug,
			source.Realm,
			strconv.FormatBool(source.Enabled),
			source.SyncPrincipal,
			strconv.FormatInt(links, 10),
		})
	}
	return output.PrintTable(os.Stdout, table)
}

type sourceTable struct {
	rows [][]string
}

func (t sourceTable) Headers() []string {
	return []string{"Slug", "Realm", "Enabled", "Sync Principal", "Links"}
}

func (t sourceTable) Rows() [][]string {
	return t.rows
}

func runSourceCreate(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	source := &models.RealmSource{
		Slug:                  args[0],
		Realm:                 createRealm,
		Enabled:               !createDisabled,
		SyncUsers:             true,
		SyncGuessEmail:        createGuessEmail,
		SyncServicePrincipals: createServicePrincipals,
		SyncPrincipal:         createSyncPrincipal,
		SyncPassword:          createSyncPassword,
		SyncKeytab:            createSyncKeytab,
		SyncCCache:            createSyncCCache,
		LDAPUrl:               createLDAPURL,
		LDAPBaseDN:            createLDAPBaseDN,
		UserPath:              createUserPath,
	}
	source.SetPropertyMappings(createMappings)

	if createKrb5ConfPath != "" {
		blob, err := os.ReadFile(createKrb5ConfPath)
		if err != nil {
			return fmt.Errorf("failed to read krb5.conf: %w", err)
		}
		source.Krb5Conf = string(blob)
	}

	if err := source.Validate(); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	id, err := st.CreateSource(cmd.Context(), source)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	fmt.Printf("Source %q created (id: %s)\n", source.Slug, id)
	return nil
}

func setSourceEnabled(cmd *cobra.Command, slug string, enabled bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetSourceEnabled(cmd.Context(), slug, enabled); err != nil {
		return fmt.Errorf("failed to update source %q: %w", slug, err)
	}
	if enabled {
		fmt.Printf("Source %q enabled\n", slug)
	} else {
		fmt.Printf("Source %q disabled\n", slug)
	}
	return nil
}

func runSourceDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteSource(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete source %q: %w", args[0], err)
	}
	fmt.Printf("Source %q deleted\n", args[0])
	return nil
}
