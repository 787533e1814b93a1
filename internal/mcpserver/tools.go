// Package mcpserver registers MCP tools that expose account operations.
// It adapts the account controller to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexjbarnes/marksync/internal/account"
	"github.com/alexjbarnes/marksync/internal/engine"
	apperrors "github.com/alexjbarnes/marksync/internal/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools adds all account tools to the given MCP server.
func RegisterTools(server *mcp.Server, c *account.Controller) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "accounts_list",
		Description: "List every configured sync account with its strategy, server, phase, last sync time and last error.",
	}, listHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "account_status",
		Description: "Show the status of one account: phase, progress of a running pass (0..1), last sync time, outcome and error.",
	}, statusHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "account_sync",
		Description: "Start a sync pass for an account. With wait=true the call returns when the pass ends and reports what it changed.",
	}, syncHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "account_cancel",
		Description: "Cancel the running sync pass of an account. Changes already applied are kept.",
	}, cancelHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "account_diff",
		Description: "Dry run: show what the next sync pass would change on each side as a line diff of the bookmark trees. Nothing is modified.",
	}, diffHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "bookmark_accounts",
		Description: "List the accounts that sync the local bookmark with the given id, with the server id of the bookmark for accounts that synced it already.",
	}, tracksHandler(c))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ListInput has no parameters.
type ListInput struct{}

// AccountInput selects an account.
type AccountInput struct {
	ID string `json:"id" jsonschema:"required,account id"`
}

// SyncInput holds parameters for account_sync.
type SyncInput struct {
	ID   string `json:"id" jsonschema:"required,account id"`
	Wait bool   `json:"wait,omitempty" jsonschema:"wait for the pass to finish, defaults to false"`
}

// TracksInput holds parameters for bookmark_accounts.
type TracksInput struct {
	LocalID string `json:"local_id" jsonschema:"required,id of the bookmark in the local file"`
}

// --- Output types ---

// StatusResult is the status of one account.
type StatusResult struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Strategy string  `json:"strategy"`
	Server   string  `json:"server"`
	Phase    string  `json:"phase"`
	Syncing  float64 `json:"syncing"`
	LastSync string  `json:"last_sync,omitempty"`
	Outcome  string  `json:"outcome,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// ListResult holds every account.
type ListResult struct {
	Accounts []StatusResult `json:"accounts"`
}

// SyncResult reports a sync request.
type SyncResult struct {
	Started    bool           `json:"started"`
	Outcome    string         `json:"outcome,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Local      engine.Summary `json:"local"`
	Server     engine.Summary `json:"server"`
	Errors     []string       `json:"errors,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
}

// CancelResult reports whether a pass was cancelled.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

// DiffResult is a dry run of the next pass.
type DiffResult struct {
	Mode       string         `json:"mode"`
	Local      engine.Summary `json:"local"`
	Server     engine.Summary `json:"server"`
	LocalDiff  string         `json:"local_diff"`
	ServerDiff string         `json:"server_diff"`
	Errors     []string       `json:"errors,omitempty"`
}

// TracksResult lists the accounts syncing a bookmark and, for those that
// synced it already, its server ids.
type TracksResult struct {
	Accounts []string                       `json:"accounts"`
	Server   map[string]account.Counterpart `json:"server,omitempty"`
}

// --- Handlers ---

func listHandler(c *account.Controller) mcp.ToolHandlerFor[ListInput, *ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, *ListResult, error) {
		result := &ListResult{Accounts: []StatusResult{}}

		for _, acct := range c.Accounts() {
			st, err := acct.Status()
			if err != nil {
				return nil, nil, err
			}

			result.Accounts = append(result.Accounts, statusResult(st))
		}

		return textResult(result), result, nil
	}
}

func statusHandler(c *account.Controller) mcp.ToolHandlerFor[AccountInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input AccountInput) (*mcp.CallToolResult, *StatusResult, error) {
		acct, err := c.Get(input.ID)
		if err != nil {
			return nil, nil, err
		}

		st, err := acct.Status()
		if err != nil {
			return nil, nil, err
		}

		result := statusResult(st)

		return textResult(result), &result, nil
	}
}

func syncHandler(c *account.Controller) mcp.ToolHandlerFor[SyncInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncInput) (*mcp.CallToolResult, *SyncResult, error) {
		if !input.Wait {
			if err := c.Trigger(ctx, input.ID); err != nil {
				return nil, nil, err
			}

			result := &SyncResult{Started: true}

			return textResult(result), result, nil
		}

		acct, err := c.Get(input.ID)
		if err != nil {
			return nil, nil, err
		}

		report, err := acct.Sync(ctx)
		if errors.Is(err, apperrors.ErrAlreadySyncing) {
			return nil, nil, err
		}

		result := &SyncResult{
			Started:    true,
			Outcome:    string(report.Outcome),
			Mode:       string(report.Mode),
			DurationMS: report.Duration.Milliseconds(),
		}

		if report.Result != nil {
			result.Local = report.Result.Local
			result.Server = report.Result.Server
			result.Errors = errorStrings(report.Result.Errors)
		}

		if err != nil && report.Outcome == account.OutcomeError {
			result.Errors = append(result.Errors, apperrors.Stringify(err))
		}

		return textResult(result), result, nil
	}
}

func cancelHandler(c *account.Controller) mcp.ToolHandlerFor[AccountInput, *CancelResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input AccountInput) (*mcp.CallToolResult, *CancelResult, error) {
		cancelled, err := c.Cancel(input.ID)
		if err != nil {
			return nil, nil, err
		}

		result := &CancelResult{Cancelled: cancelled}

		return textResult(result), result, nil
	}
}

func diffHandler(c *account.Controller) mcp.ToolHandlerFor[AccountInput, *DiffResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AccountInput) (*mcp.CallToolResult, *DiffResult, error) {
		acct, err := c.Get(input.ID)
		if err != nil {
			return nil, nil, err
		}

		pv, err := acct.Preview(ctx)
		if err != nil {
			return nil, nil, err
		}

		result := &DiffResult{
			Mode:       string(pv.Mode),
			Local:      pv.LocalPlan.Summary(),
			Server:     pv.ServerPlan.Summary(),
			LocalDiff:  pv.LocalDiff,
			ServerDiff: pv.ServerDiff,
			Errors:     errorStrings(pv.Errors),
		}

		return textResult(result), result, nil
	}
}

func tracksHandler(c *account.Controller) mcp.ToolHandlerFor[TracksInput, *TracksResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TracksInput) (*mcp.CallToolResult, *TracksResult, error) {
		ids, err := c.TracksBookmark(ctx, input.LocalID)
		if err != nil {
			return nil, nil, err
		}

		result := &TracksResult{Accounts: ids}
		if result.Accounts == nil {
			result.Accounts = []string{}
		}

		for _, id := range ids {
			acct, err := c.Get(id)
			if err != nil {
				return nil, nil, err
			}

			cp, ok, err := acct.Counterpart(ctx, input.LocalID)
			if err != nil {
				return nil, nil, err
			}

			if !ok {
				continue
			}

			if result.Server == nil {
				result.Server = make(map[string]account.Counterpart)
			}

			result.Server[id] = cp
		}

		return textResult(result), result, nil
	}
}

func statusResult(st account.Status) StatusResult {
	out := StatusResult{
		ID:       st.ID,
		Label:    st.Label,
		Strategy: st.Strategy,
		Server:   st.Server,
		Phase:    string(st.Phase),
		Syncing:  st.Syncing,
		Outcome:  st.Outcome,
		Error:    st.Error,
	}

	if !st.LastSync.IsZero() {
		out.LastSync = st.LastSync.UTC().Format(time.RFC3339)
	}

	return out
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}

	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}

	return out
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
