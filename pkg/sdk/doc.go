// Package ratevault provides a Go client for the rate-limited escrow HTTP API.
//
// Depositors move funds in and out of the pool; the configured agent draws at the
// escrow's accrued rate:
//
//	dep, _ := ratevault.New("http://localhost:8080", ratevault.WithToken("depositor-one"))
//	_, _ = dep.Deposit(ctx, uint256.NewInt(1_000))
//
//	agent, _ := ratevault.New("http://localhost:8080", ratevault.WithToken("agent"))
//	state, _ := agent.Escrow(ctx)
//	_, err := agent.Draw(ctx, recipient, state.ProjectedBudget)
//	if errors.Is(err, ratevault.ErrRateLimited) {
//	    // wait for more budget to accrue
//	}
package ratevault
