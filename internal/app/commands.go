package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/provider"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/version"
)

// specsInput accepts either a bare array of transfer specs or an object
// wrapping them, so callers can pipe richer documents unchanged.
type specsInput struct {
	Transfers []provider.RawTransferSpec `json:"transfers"`
}

func readTransferSpecs(r io.Reader) ([]provider.RawTransferSpec, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "read transfer specs", err)
	}
	trimmed := strings.TrimSpace(string(buf))
	if trimmed == "" {
		return nil, clierr.New(clierr.CodeUsage, "transfer specs input is empty")
	}
	if strings.HasPrefix(trimmed, "[") {
		var specs []provider.RawTransferSpec
		if err := json.Unmarshal([]byte(trimmed), &specs); err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse transfer specs", err)
		}
		return specs, nil
	}
	var wrapped specsInput
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse transfer specs", err)
	}
	if len(wrapped.Transfers) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "transfer specs input has no transfers")
	}
	return wrapped.Transfers, nil
}

func (s *runtimeState) newRequirementsCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "requirements [specs-file]",
		Short: "Quote a transfer bundle and report the funding gap",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "open specs file", err)
				}
				defer f.Close()
				input = f
			}
			specs, err := readTransferSpecs(input)
			if err != nil {
				return err
			}
			m, err := s.ensureManager()
			if err != nil {
				return err
			}
			report, err := m.BridgeRefillRequirements(cmd.Context(), specs, force)
			if err != nil {
				return err
			}
			return s.emit(report)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-quote even when an unexpired identical bundle exists")
	return cmd
}

func (s *runtimeState) newExecuteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <bundle-id>",
		Short: "Execute the quoted bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.ensureManager()
			if err != nil {
				return err
			}
			status, err := m.ExecuteBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(status)
		},
	}
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [bundle-id]",
		Short: "Report bundle status, refreshing executed transfers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.ensureManager()
			if err != nil {
				return err
			}
			bundleID := ""
			if len(args) == 1 {
				bundleID = args[0]
			} else {
				bundleID = m.LastExecutedBundleID()
				if bundleID == "" {
					return clierr.New(clierr.CodeUsage, "no bundle id given and nothing has been executed yet")
				}
			}
			status, err := m.GetStatusJSON(cmd.Context(), bundleID)
			if err != nil {
				return err
			}
			return s.emit(status)
		},
	}
}

func (s *runtimeState) newRequoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requote <bundle-id>",
		Short: "Re-quote the live bundle in place, keeping its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.ensureManager()
			if err != nil {
				return err
			}
			status, err := m.RequoteBundle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return s.emit(status)
		},
	}
}

func (s *runtimeState) newLastExecutedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "last-executed",
		Short: "Print the id of the most recently executed bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := s.ensureManager()
			if err != nil {
				return err
			}
			var id *string
			if last := m.LastExecutedBundleID(); last != "" {
				id = &last
			}
			return s.emit(map[string]any{"last_executed_bundle_id": id})
		},
	}
}

type preferredRouteInfo struct {
	FromChain string `json:"from_chain"`
	FromToken string `json:"from_token"`
	ToChain   string `json:"to_chain"`
	ToToken   string `json:"to_token"`
	Provider  string `json:"provider"`
}

type nativeRouteInfo struct {
	FromChain  string `json:"from_chain"`
	ToChain    string `json:"to_chain"`
	Adaptor    string `json:"adaptor"`
	ETASeconds int64  `json:"eta_seconds"`
}

func (s *runtimeState) newRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List preferred and native bridge routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			preferred := make([]preferredRouteInfo, 0)
			for key, providerID := range registry.PreferredRoutes() {
				preferred = append(preferred, preferredRouteInfo{
					FromChain: chainSlugByID(key.FromChainID),
					FromToken: key.FromToken,
					ToChain:   chainSlugByID(key.ToChainID),
					ToToken:   key.ToToken,
					Provider:  providerID,
				})
			}
			sort.Slice(preferred, func(i, j int) bool {
				if preferred[i].FromChain != preferred[j].FromChain {
					return preferred[i].FromChain < preferred[j].FromChain
				}
				return preferred[i].ToChain < preferred[j].ToChain
			})

			native := make([]nativeRouteInfo, 0)
			for _, ep := range registry.AllBridgeEndpoints() {
				native = append(native, nativeRouteInfo{
					FromChain:  chainSlugByID(ep.FromChainID),
					ToChain:    chainSlugByID(ep.ToChainID),
					Adaptor:    string(ep.Adaptor),
					ETASeconds: ep.ETASeconds,
				})
			}
			return s.emit(map[string]any{
				"preferred_routes": preferred,
				"native_routes":    native,
				"fallback":         registry.ProviderRelay,
			})
		},
	}
}

func chainSlugByID(id int64) string {
	if chain, ok := registry.ChainByID(id); ok {
		return chain.Slug
	}
	return fmt.Sprintf("chain-%d", id)
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chains := registry.Chains()
			sort.Slice(chains, func(i, j int) bool { return chains[i].ID < chains[j].ID })
			type chainInfo struct {
				Name        string `json:"name"`
				Slug        string `json:"slug"`
				ID          int64  `json:"id"`
				ExplorerURL string `json:"explorer_url"`
			}
			infos := make([]chainInfo, 0, len(chains))
			for _, c := range chains {
				infos = append(infos, chainInfo{Name: c.Name, Slug: c.Slug, ID: c.ID, ExplorerURL: c.ExplorerURL})
			}
			return s.emit(infos)
		},
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}
