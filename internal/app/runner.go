package app

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/bridge-cli/internal/cache"
	"github.com/ggonzalez94/bridge-cli/internal/config"
	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/httpx"
	"github.com/ggonzalez94/bridge-cli/internal/manager"
	"github.com/ggonzalez94/bridge-cli/internal/out"
	"github.com/ggonzalez94/bridge-cli/internal/provider"
	"github.com/ggonzalez94/bridge-cli/internal/provider/lifi"
	"github.com/ggonzalez94/bridge-cli/internal/provider/native"
	"github.com/ggonzalez94/bridge-cli/internal/provider/relay"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/version"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	log      *logrus.Logger

	wallet   *wallet.LocalWallet
	messages *cache.MessageStore
	manager  *manager.Manager
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	state.close()
	if err == nil {
		return 0
	}
	state.renderError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.messages != nil {
		_ = s.messages.Close()
	}
	if s.wallet != nil {
		s.wallet.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Cross-chain bridge orchestration CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			log := logrus.New()
			log.SetOutput(s.runner.stderr)
			log.SetLevel(logrus.WarnLevel)
			if level, err := logrus.ParseLevel(os.Getenv("BRIDGE_LOG_LEVEL")); err == nil {
				log.SetLevel(level)
			}
			s.log = log

			if writeErr := config.WriteDefaultIfMissing(s.flags.ConfigPath); writeErr != nil {
				log.Debugf("write default config: %v", writeErr)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.DataDir, "data-dir", "", "State directory for bundles and caches")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Aggregator request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per aggregator request")

	cmd.AddCommand(s.newRequirementsCommand())
	cmd.AddCommand(s.newExecuteCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newRequoteCommand())
	cmd.AddCommand(s.newLastExecutedCommand())
	cmd.AddCommand(s.newRoutesCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// ensureManager builds the signer, the wallet, the provider set and the
// bundle store on first use. Informational commands never pay this cost and
// never require a signing key.
func (s *runtimeState) ensureManager() (*manager.Manager, error) {
	if s.manager != nil {
		return s.manager, nil
	}

	signer, err := wallet.NewLocalSignerFromEnv()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signing key", err)
	}
	safes := make(map[int64]common.Address, len(s.settings.SafeAddresses))
	for chainID, addr := range s.settings.SafeAddresses {
		safes[chainID] = common.HexToAddress(addr)
	}
	s.wallet = wallet.NewLocalWallet(signer, safes, s.settings.RPCOverrides)

	messages, err := cache.Open(s.settings.MessageCachePath, s.settings.MessageCacheLockPath)
	if err != nil {
		// Message-id resolution falls back to receipt logs without it.
		s.log.Warnf("open message cache: %v", err)
	} else {
		s.messages = messages
	}

	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries)
	heuristic := provider.FailureHeuristic{
		SoftFloor:   s.settings.HeuristicSoftFloor,
		HardCeiling: s.settings.HeuristicHardCeiling,
	}

	lifiProvider := lifi.New(httpClient, s.wallet, s.log)
	if s.settings.LiFiBaseURL != "" {
		lifiProvider.SetBaseURL(s.settings.LiFiBaseURL)
	}
	relayProvider := relay.New(httpClient, s.wallet, s.log)
	if s.settings.RelayBaseURL != "" {
		relayProvider.SetBaseURL(s.settings.RelayBaseURL)
	}
	optimismProvider := native.NewOptimismProvider(s.wallet, s.log)
	omnibridgeProvider := native.NewOmnibridgeProvider(s.wallet, s.messages, s.log)

	lifiProvider.SetFailureHeuristic(heuristic)
	relayProvider.SetFailureHeuristic(heuristic)
	optimismProvider.SetFailureHeuristic(heuristic)
	omnibridgeProvider.SetFailureHeuristic(heuristic)

	providers := map[string]provider.Provider{
		registry.ProviderLiFi:       lifiProvider,
		registry.ProviderRelay:      relayProvider,
		registry.ProviderOptimism:   optimismProvider,
		registry.ProviderOmnibridge: omnibridgeProvider,
	}
	for _, p := range []interface {
		SetRetryPolicy(int, time.Duration)
		SetGasBuffer(float64)
	}{lifiProvider, relayProvider, optimismProvider, omnibridgeProvider} {
		p.SetRetryPolicy(s.settings.QuoteAttempts, s.settings.QuoteRetryDelay)
		p.SetGasBuffer(s.settings.GasBuffer)
	}

	store, err := manager.OpenStore(s.settings.BundlePath, s.settings.BundleLockPath, s.settings.ExecutedDir, s.log)
	if err != nil {
		return nil, err
	}
	m, err := manager.New(providers, s.wallet, store, s.settings.ValidityPeriod, s.log)
	if err != nil {
		return nil, err
	}
	s.manager = m
	return m, nil
}

func (s *runtimeState) emit(data any, warnings ...string) error {
	return out.Render(s.runner.stdout, out.Success(data, warnings...), s.settings.OutputMode)
}

func (s *runtimeState) renderError(err error) {
	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	_ = out.Render(s.runner.stderr, out.Failure(err), mode)
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
