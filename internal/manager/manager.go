package manager

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/bridge-cli/internal/errors"
	"github.com/ggonzalez94/bridge-cli/internal/model"
	"github.com/ggonzalez94/bridge-cli/internal/provider"
	"github.com/ggonzalez94/bridge-cli/internal/registry"
	"github.com/ggonzalez94/bridge-cli/internal/wallet"
)

// nativeProviderOrder fixes the priority in which native bridge providers
// are asked to handle a route, matching the endpoint table's order.
var nativeProviderOrder = []string{registry.ProviderOptimism, registry.ProviderOmnibridge}

// AssetAmounts nests amounts by chain slug, holder address and token
// address; the zero token address is the chain's native coin.
type AssetAmounts map[string]map[string]map[string]*big.Int

func (a AssetAmounts) add(chain string, holder, token common.Address, amount *big.Int) {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if a[chain] == nil {
		a[chain] = map[string]map[string]*big.Int{}
	}
	if a[chain][holder.Hex()] == nil {
		a[chain][holder.Hex()] = map[string]*big.Int{}
	}
	current := a[chain][holder.Hex()][token.Hex()]
	if current == nil {
		current = big.NewInt(0)
	}
	a[chain][holder.Hex()][token.Hex()] = new(big.Int).Add(current, amount)
}

func (a AssetAmounts) anyPositive() bool {
	for _, byHolder := range a {
		for _, byToken := range byHolder {
			for _, amount := range byToken {
				if amount != nil && amount.Sign() > 0 {
					return true
				}
			}
		}
	}
	return false
}

// RequestStatus pairs a request id with its provider status block.
type RequestStatus struct {
	RequestID string                `json:"request_id"`
	Report    provider.StatusReport `json:"report"`
}

// RequirementsReport is the caller-facing answer to a funding query.
type RequirementsReport struct {
	ID                  string          `json:"id"`
	Balances            AssetAmounts    `json:"balances"`
	TotalRequirements   AssetAmounts    `json:"bridge_total_requirements"`
	RefillRequirements  AssetAmounts    `json:"bridge_refill_requirements"`
	ExpirationTimestamp int64           `json:"expiration_timestamp"`
	IsRefillRequired    bool            `json:"is_refill_required"`
	RequestStatus       []RequestStatus `json:"bridge_request_status"`
}

// BundleStatus is the caller-facing status block for one bundle.
type BundleStatus struct {
	ID            string          `json:"id"`
	Archived      bool            `json:"archived"`
	RequestStatus []RequestStatus `json:"bridge_request_status"`
}

// Manager owns the provider set, the route-selection policy and the
// persisted live bundle. All operations are synchronous; a single live
// process per data directory is assumed.
type Manager struct {
	providers map[string]provider.Provider
	wallet    wallet.Wallet
	store     *Store
	state     persistedState
	validity  time.Duration
	log       *logrus.Entry
	now       func() int64
}

func New(providers map[string]provider.Provider, w wallet.Wallet, store *Store, validity time.Duration, log *logrus.Logger) (*Manager, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	for _, required := range []string{registry.ProviderRelay} {
		if _, ok := providers[required]; !ok {
			return nil, clierr.New(clierr.CodeInternal, "provider map is missing "+required)
		}
	}
	state, err := store.Read()
	if err != nil {
		return nil, err
	}
	return &Manager{
		providers: providers,
		wallet:    w,
		store:     store,
		state:     state,
		validity:  validity,
		log:       log.WithField("component", "manager"),
		now:       func() int64 { return time.Now().Unix() },
	}, nil
}

// LastExecutedBundleID returns the id of the most recently executed bundle,
// or empty when nothing has been executed yet.
func (m *Manager) LastExecutedBundleID() string {
	if m.state.LastExecutedBundleID == nil {
		return ""
	}
	return *m.state.LastExecutedBundleID
}

// selectProvider applies the route policy: exact preferred-route match,
// then native bridges in table order, then the liquidity-routing fallback.
func (m *Manager) selectProvider(spec model.TransferSpec) (provider.Provider, error) {
	fromChain, err := registry.ParseChain(spec.From.Chain)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse from.chain", err)
	}
	toChain, err := registry.ParseChain(spec.To.Chain)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse to.chain", err)
	}

	key := registry.NewRouteKey(fromChain.ID, spec.From.Token, toChain.ID, spec.To.Token)
	if id, ok := registry.PreferredProvider(key); ok {
		if p, ok := m.providers[id]; ok {
			return p, nil
		}
		return nil, clierr.New(clierr.CodeInternal, "preferred provider "+id+" is not configured")
	}
	for _, id := range nativeProviderOrder {
		p, ok := m.providers[id]
		if !ok {
			continue
		}
		if p.CanHandleRequest(spec) {
			return p, nil
		}
	}
	return m.providers[registry.ProviderRelay], nil
}

// validateSenders requires every from.address to be the master EOA or the
// configured smart account on that chain.
func (m *Manager) validateSenders(specs []model.TransferSpec) error {
	master := m.wallet.Address()
	for i, spec := range specs {
		if spec.From.Address == master {
			continue
		}
		fromChain, _ := registry.ParseChain(spec.From.Chain)
		if safe, ok := m.wallet.SafeAddress(fromChain.ID); ok && spec.From.Address == safe {
			continue
		}
		return clierr.New(clierr.CodeUsage, fmt.Sprintf(
			"transfer %d: from.address %s is neither the master EOA nor a configured smart account on %s",
			i+1, spec.From.Address.Hex(), spec.From.Chain))
	}
	return nil
}

func rawFromSpec(spec model.TransferSpec) provider.RawTransferSpec {
	return provider.RawTransferSpec{
		From: provider.RawEndpoint{
			Chain:   spec.From.Chain,
			Address: spec.From.Address.Hex(),
			Token:   spec.From.Token.Hex(),
		},
		To: provider.RawToEndpoint{
			Chain:   spec.To.Chain,
			Address: spec.To.Address.Hex(),
			Token:   spec.To.Token.Hex(),
			Amount:  spec.ToAmount.String(),
		},
	}
}

func (m *Manager) ownerOf(req *model.ProviderRequest) (provider.Provider, error) {
	p, ok := m.providers[req.ProviderID]
	if !ok {
		return nil, clierr.New(clierr.CodeProtocol, "request "+req.ID+" is owned by unknown provider "+req.ProviderID)
	}
	return p, nil
}

// getUpdatedBundle reuses the live bundle verbatim while its params match,
// it has not expired and no refresh was forced; re-quotes it in place when
// forced or expired; builds and quotes a fresh bundle otherwise.
func (m *Manager) getUpdatedBundle(ctx context.Context, specs []model.TransferSpec, force bool) (*model.RequestBundle, error) {
	live := m.state.LastRequestedBundle
	if live != nil && live.SameParams(specs) {
		if !force && !live.Expired(m.now(), int64(m.validity.Seconds())) {
			return live, nil
		}
		for _, req := range live.Requests {
			p, err := m.ownerOf(req)
			if err != nil {
				return nil, err
			}
			if err := p.Quote(ctx, req); err != nil {
				return nil, err
			}
		}
		live.Timestamp = m.now()
		if err := m.persist(); err != nil {
			return nil, err
		}
		return live, nil
	}

	bundle := &model.RequestBundle{
		ID:             model.NewBundleID(),
		Timestamp:      m.now(),
		RequestsParams: specs,
	}
	for _, spec := range specs {
		p, err := m.selectProvider(spec)
		if err != nil {
			return nil, err
		}
		req, err := p.CreateRequest(rawFromSpec(spec))
		if err != nil {
			return nil, err
		}
		if err := p.Quote(ctx, req); err != nil {
			return nil, err
		}
		bundle.Requests = append(bundle.Requests, req)
	}
	m.state.LastRequestedBundle = bundle
	if err := m.persist(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (m *Manager) persist() error {
	return m.store.Write(m.state)
}

// totalRequirements sums every request's source-chain requirement through
// its owning provider. Requests that never reached QUOTE_DONE cost nothing.
func (m *Manager) totalRequirements(ctx context.Context, bundle *model.RequestBundle) (AssetAmounts, error) {
	total := AssetAmounts{}
	for _, req := range bundle.Requests {
		// Seed the keys so zero requirements still appear in the answer.
		total.add(req.Params.From.Chain, req.Params.From.Address, common.Address{}, big.NewInt(0))
		if !registry.IsNativeToken(req.Params.From.Token) {
			total.add(req.Params.From.Chain, req.Params.From.Address, req.Params.From.Token, big.NewInt(0))
		}
		if req.Status != model.StatusQuoteDone {
			continue
		}
		p, err := m.ownerOf(req)
		if err != nil {
			return nil, err
		}
		rq, err := p.Requirements(ctx, req)
		if err != nil {
			return nil, err
		}
		total.add(req.Params.From.Chain, req.Params.From.Address, common.Address{}, rq.Native)
		if !registry.IsNativeToken(req.Params.From.Token) {
			total.add(req.Params.From.Chain, req.Params.From.Address, req.Params.From.Token, rq.Token)
		}
	}
	return total, nil
}

// liveBalances reads the current native and token balances for every
// chain/holder/token combination the totals mention.
func (m *Manager) liveBalances(ctx context.Context, total AssetAmounts) (AssetAmounts, error) {
	balances := AssetAmounts{}
	for chainSlug, byHolder := range total {
		c, err := registry.ParseChain(chainSlug)
		if err != nil {
			return nil, err
		}
		ledger, err := m.wallet.Ledger(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for holderHex, byToken := range byHolder {
			holder := common.HexToAddress(holderHex)
			tokens := make([]common.Address, 0, len(byToken))
			for tokenHex := range byToken {
				tokens = append(tokens, common.HexToAddress(tokenHex))
			}
			got, err := wallet.Balances(ctx, ledger, tokens, []common.Address{holder})
			if err != nil {
				return nil, err
			}
			for token, balance := range got[holder] {
				balances.add(chainSlug, holder, token, balance)
			}
		}
	}
	return balances, nil
}

// refillFrom computes max(total - balance, 0) elementwise over the totals.
func refillFrom(total, balances AssetAmounts) AssetAmounts {
	refill := AssetAmounts{}
	for chainSlug, byHolder := range total {
		for holderHex, byToken := range byHolder {
			for tokenHex, required := range byToken {
				have := big.NewInt(0)
				if balances[chainSlug] != nil && balances[chainSlug][holderHex] != nil && balances[chainSlug][holderHex][tokenHex] != nil {
					have = balances[chainSlug][holderHex][tokenHex]
				}
				gap := new(big.Int).Sub(required, have)
				if gap.Sign() < 0 {
					gap = big.NewInt(0)
				}
				refill.add(chainSlug, common.HexToAddress(holderHex), common.HexToAddress(tokenHex), gap)
			}
		}
	}
	return refill
}

func (m *Manager) requestStatuses(ctx context.Context, bundle *model.RequestBundle) ([]RequestStatus, bool, error) {
	out := make([]RequestStatus, 0, len(bundle.Requests))
	changed := false
	for _, req := range bundle.Requests {
		p, err := m.ownerOf(req)
		if err != nil {
			return nil, false, err
		}
		before := req.Status
		report, err := p.StatusJSON(ctx, req)
		if err != nil {
			return nil, false, err
		}
		if req.Status != before {
			changed = true
		}
		out = append(out, RequestStatus{RequestID: req.ID, Report: report})
	}
	return out, changed, nil
}

// BridgeRefillRequirements sanitizes and validates the transfer specs,
// obtains a quoted bundle (reusing the live one per the refresh policy) and
// answers the funding gap per chain, holder and token.
func (m *Manager) BridgeRefillRequirements(ctx context.Context, raw []provider.RawTransferSpec, force bool) (*RequirementsReport, error) {
	if len(raw) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "at least one transfer spec is required")
	}
	specs := make([]model.TransferSpec, 0, len(raw))
	for _, r := range raw {
		spec, err := provider.SanitizeSpec(r)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if err := m.validateSenders(specs); err != nil {
		return nil, err
	}

	bundle, err := m.getUpdatedBundle(ctx, specs, force)
	if err != nil {
		return nil, err
	}

	total, err := m.totalRequirements(ctx, bundle)
	if err != nil {
		return nil, err
	}
	balances, err := m.liveBalances(ctx, total)
	if err != nil {
		return nil, err
	}
	refill := refillFrom(total, balances)

	statuses, changed, err := m.requestStatuses(ctx, bundle)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := m.persist(); err != nil {
			return nil, err
		}
	}

	return &RequirementsReport{
		ID:                  bundle.ID,
		Balances:            balances,
		TotalRequirements:   total,
		RefillRequirements:  refill,
		ExpirationTimestamp: bundle.Timestamp + int64(m.validity.Seconds()),
		IsRefillRequired:    refill.anyPositive(),
		RequestStatus:       statuses,
	}, nil
}

// BridgeTotalRequirements answers the on-chain cost of a bundle without
// touching balances, for the live bundle or an archived one.
func (m *Manager) BridgeTotalRequirements(ctx context.Context, bundleID string) (AssetAmounts, error) {
	bundle, _, err := m.findBundle(bundleID)
	if err != nil {
		return nil, err
	}
	return m.totalRequirements(ctx, bundle)
}

func (m *Manager) findBundle(bundleID string) (*model.RequestBundle, bool, error) {
	if live := m.state.LastRequestedBundle; live != nil && live.ID == bundleID {
		return live, false, nil
	}
	archived, err := m.store.LoadExecuted(bundleID)
	if err != nil {
		return nil, false, err
	}
	return archived, true, nil
}

// ExecuteBundle runs every request of the live bundle through its owning
// provider. The bundle is archived before the first submission so a crash
// mid-execution leaves an inspectable record, and re-persisted after every
// request so the archive is never more than one step stale.
func (m *Manager) ExecuteBundle(ctx context.Context, bundleID string) (*BundleStatus, error) {
	live := m.state.LastRequestedBundle
	if live == nil {
		return nil, clierr.New(clierr.CodeProtocol, "no live bundle to execute")
	}
	if live.ID != bundleID {
		return nil, clierr.New(clierr.CodeProtocol, fmt.Sprintf("bundle id %s does not match the live bundle %s", bundleID, live.ID))
	}

	// Funding shortfalls are surfaced, never blocking: the operator may
	// have topped up out of band since the quote.
	if total, err := m.totalRequirements(ctx, live); err != nil {
		m.log.Warnf("requirements recomputation failed before execution: %v", err)
	} else if balances, err := m.liveBalances(ctx, total); err != nil {
		m.log.Warnf("balance read failed before execution: %v", err)
	} else if refill := refillFrom(total, balances); refill.anyPositive() {
		m.log.WithField("bundle_id", bundleID).Warn("executing with an unfunded shortfall")
	}

	m.state.LastExecutedBundleID = &live.ID
	m.state.LastRequestedBundle = nil
	if err := m.store.SaveExecuted(live); err != nil {
		return nil, err
	}
	if err := m.persist(); err != nil {
		return nil, err
	}

	for _, req := range live.Requests {
		p, err := m.ownerOf(req)
		if err != nil {
			return nil, err
		}
		if err := p.Execute(ctx, req); err != nil {
			// Protocol misuse surfaces after the archive is current.
			if saveErr := m.store.SaveExecuted(live); saveErr != nil {
				m.log.Warnf("archive update failed: %v", saveErr)
			}
			return nil, err
		}
		if err := m.store.SaveExecuted(live); err != nil {
			return nil, err
		}
	}

	statuses, _, err := m.requestStatuses(ctx, live)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveExecuted(live); err != nil {
		return nil, err
	}
	return &BundleStatus{ID: live.ID, Archived: true, RequestStatus: statuses}, nil
}

// GetStatusJSON reports the bundle's per-request status, refreshing each
// request through its provider and persisting any change.
func (m *Manager) GetStatusJSON(ctx context.Context, bundleID string) (*BundleStatus, error) {
	bundle, archived, err := m.findBundle(bundleID)
	if err != nil {
		return nil, err
	}
	statuses, changed, err := m.requestStatuses(ctx, bundle)
	if err != nil {
		return nil, err
	}
	if changed {
		if archived {
			if err := m.store.SaveExecuted(bundle); err != nil {
				return nil, err
			}
		} else if err := m.persist(); err != nil {
			return nil, err
		}
	}
	return &BundleStatus{ID: bundle.ID, Archived: archived, RequestStatus: statuses}, nil
}

// RequoteBundle re-quotes the live bundle in place, keeping its id.
func (m *Manager) RequoteBundle(ctx context.Context, bundleID string) (*BundleStatus, error) {
	live := m.state.LastRequestedBundle
	if live == nil {
		return nil, clierr.New(clierr.CodeProtocol, "no live bundle to re-quote")
	}
	if live.ID != bundleID {
		return nil, clierr.New(clierr.CodeProtocol, fmt.Sprintf("bundle id %s does not match the live bundle %s", bundleID, live.ID))
	}
	if _, err := m.getUpdatedBundle(ctx, live.RequestsParams, true); err != nil {
		return nil, err
	}
	statuses, _, err := m.requestStatuses(ctx, live)
	if err != nil {
		return nil, err
	}
	return &BundleStatus{ID: live.ID, RequestStatus: statuses}, nil
}
