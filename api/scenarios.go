/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the ledger with realistic
  data for demos. Each scenario mints demo-token balances, creates
  policies, and runs a few operations so the API has something to show.

AVAILABLE SCENARIOS:
  starter-pool:  One policy, two participants, one premium each
  claim-cycle:   Full lifecycle: premiums, claim, approval, payout

HOW SCENARIOS WORK:
 1. Mint demo-token balances for a handful of accounts
 2. Approve the ledger spender for each payer
 3. Create policies and drive operations through the ledger

USAGE VIA API:
  POST /api/scenarios/load
  {"name": "claim-cycle"}

NOTE:
  Scenarios add to existing state; they do not reset it. Only use in
  development/demo environments. Disabled when no demo token is wired.

SEE ALSO:
  - handlers.go: Handler dependencies
  - insurance/token/memory.go: The demo token implementation
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/pool-engine/insurance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		Name:        "starter-pool",
		Description: "One policy, two participants, one premium each",
	},
	{
		Name:        "claim-cycle",
		Description: "Full lifecycle: premiums, claim, approval, payout",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario populates the ledger with the named demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.DemoToken == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled (no demo token)", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	switch req.Name {
	case "starter-pool":
		err = h.loadStarterPool(r.Context())
	case "claim-cycle":
		err = h.loadClaimCycle(r.Context())
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario %q", req.Name), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.Name})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// fundAccount mints balance and approves the ledger spender so the
// account can pay premiums.
func (h *Handler) fundAccount(ctx context.Context, account insurance.Identity, amount int64) error {
	h.DemoToken.Mint(account, decimal.NewFromInt(amount))
	return h.DemoToken.Approve(ctx, account, insurance.SpenderAccount, decimal.NewFromInt(amount))
}

func (h *Handler) loadStarterPool(ctx context.Context) error {
	alice := insurance.Identity("alice")
	bob := insurance.Identity("bob")
	for _, account := range []insurance.Identity{alice, bob} {
		if err := h.fundAccount(ctx, account, 100000); err != nil {
			return err
		}
	}

	id, err := h.Ledger.CreatePolicy(ctx, alice, "Community Pool", 30*24*3600,
		[]string{"community", "demo"}, h.DemoTokenHandle, 10)
	if err != nil {
		return err
	}

	if err := h.Ledger.PayPremium(ctx, alice, id, decimal.NewFromInt(500)); err != nil {
		return err
	}
	return h.Ledger.PayPremium(ctx, bob, id, decimal.NewFromInt(500))
}

func (h *Handler) loadClaimCycle(ctx context.Context) error {
	carol := insurance.Identity("carol")
	dave := insurance.Identity("dave")
	for _, account := range []insurance.Identity{carol, dave} {
		if err := h.fundAccount(ctx, account, 100000); err != nil {
			return err
		}
	}

	id, err := h.Ledger.CreatePolicy(ctx, carol, "Repair Fund", 90*24*3600,
		[]string{"repairs", "demo"}, h.DemoTokenHandle, 10)
	if err != nil {
		return err
	}

	if err := h.Ledger.PayPremium(ctx, dave, id, decimal.NewFromInt(1000)); err != nil {
		return err
	}

	claimIndex, err := h.Ledger.SubmitClaim(ctx, dave, id, decimal.NewFromInt(250))
	if err != nil {
		return err
	}
	if err := h.Ledger.ApproveClaim(ctx, carol, id, claimIndex); err != nil {
		return err
	}
	_, err = h.Ledger.ProcessPayout(ctx, carol, id)
	return err
}
