package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deepsleep-project/deepsleep/internal/daemon"
	"github.com/deepsleep-project/deepsleep/internal/domain"
)

func init() {
	whitelistListCmd.Flags().StringVarP(&wlListCategory, "category", "c", "", "Only show SUPPRESS or BACKGROUND entries")
	whitelistAddCmd.Flags().StringVarP(&wlAddCategory, "category", "c", string(domain.CategorySuppress), "SUPPRESS or BACKGROUND")
	whitelistAddCmd.Flags().StringVar(&wlNote, "note", "", "Free-form note")

	whitelistCmd.AddCommand(whitelistListCmd, whitelistAddCmd, whitelistRmCmd, whitelistImportCmd, whitelistExportCmd)
	rootCmd.AddCommand(whitelistCmd)
}

var (
	wlListCategory string
	wlAddCategory  string
	wlNote         string
)

// whitelistFile is the YAML layout used by import and export.
type whitelistFile struct {
	Entries []domain.WhitelistEntry `yaml:"entries"`
}

func encodeWhitelist(w io.Writer, entries []domain.WhitelistEntry) error {
	if entries == nil {
		entries = []domain.WhitelistEntry{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(whitelistFile{Entries: entries}); err != nil {
		return err
	}
	return enc.Close()
}

// decodeWhitelist reads a whitelist file. IDs are dropped so imported
// entries merge by identifier and category.
func decodeWhitelist(r io.Reader) ([]domain.WhitelistEntry, error) {
	var f whitelistFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse whitelist: %w", err)
	}
	for i := range f.Entries {
		f.Entries[i].ID = ""
		cat, err := domain.ParseCategory(string(f.Entries[i].Category))
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i+1, f.Entries[i].Identifier, err)
		}
		f.Entries[i].Category = cat
	}
	return f.Entries, nil
}

var whitelistCmd = &cobra.Command{
	Use:     "whitelist",
	Aliases: []string{"wl"},
	Short:   "Manage processes and packages exempt from suppression",
	Long: `Whitelist entries are matched as substrings of process names (SUPPRESS)
or package names (BACKGROUND). A running daemon picks up changes on its
next pass.`,
}

var whitelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List whitelist entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var category domain.WhitelistCategory
		if wlListCategory != "" {
			c, err := domain.ParseCategory(wlListCategory)
			if err != nil {
				return err
			}
			category = c
		}
		return withStore(func(st whitelistStore) error {
			entries, err := st.ListWhitelist(category)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No whitelist entries.")
				return nil
			}
			w := newTable(out)
			fmt.Fprintln(w, "ID\tCATEGORY\tIDENTIFIER\tNOTE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Category, e.Identifier, e.Note)
			}
			return w.Flush()
		})
	},
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add IDENTIFIER",
	Short: "Add a whitelist entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st whitelistStore) error {
			e, err := st.AddWhitelist(domain.WhitelistEntry{
				Identifier: args[0],
				Note:       wlNote,
				Category:   domain.WhitelistCategory(wlAddCategory),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) as %s\n", e.Identifier, e.Category, e.ID)
			return nil
		})
	},
}

var whitelistRmCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"remove"},
	Short:   "Remove a whitelist entry by ID",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st whitelistStore) error {
			if err := st.RemoveWhitelist(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		})
	},
}

var whitelistImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge entries from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		entries, err := decodeWhitelist(f)
		if err != nil {
			return err
		}
		return withStore(func(st whitelistStore) error {
			for _, e := range entries {
				if _, err := st.AddWhitelist(e); err != nil {
					return fmt.Errorf("import %s: %w", e.Identifier, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries\n", len(entries))
			return nil
		})
	},
}

var whitelistExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write every entry as YAML (stdout by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st whitelistStore) error {
			entries, err := st.ListWhitelist("")
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return encodeWhitelist(cmd.OutOrStdout(), entries)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := encodeWhitelist(f, entries); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		})
	},
}

type whitelistStore interface {
	AddWhitelist(domain.WhitelistEntry) (domain.WhitelistEntry, error)
	RemoveWhitelist(id string) error
	ListWhitelist(domain.WhitelistCategory) ([]domain.WhitelistEntry, error)
}

func withStore(fn func(whitelistStore) error) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
