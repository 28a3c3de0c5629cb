package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *FraudgateClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *FraudgateClient) *Handlers {
	return &Handlers{client: client}
}

// HandleScoreTransaction submits features for a gate decision.
func (h *Handlers) HandleScoreTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	if category == "" {
		return mcp.NewToolResultError("category is required"), nil
	}

	args := req.GetArguments()
	features := map[string]any{
		"category": category,
		"amt":      floatArg(args, "amt"),
		"city":     req.GetString("city", ""),
		"state":    req.GetString("state", ""),
		"job":      req.GetString("job", ""),
		"hour":     int(floatArg(args, "hour")),
		"dow":      int(floatArg(args, "dow")),
		"age":      int(floatArg(args, "age")),
	}
	if history, ok := args["history"].([]any); ok {
		amounts := make([]float64, 0, len(history))
		for _, v := range history {
			if f, ok := v.(float64); ok {
				amounts = append(amounts, f)
			}
		}
		features["history"] = amounts
	}

	raw, err := h.client.ScoreTransaction(ctx, features)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to score transaction: %v", err)), nil
	}

	text, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleSendOTP issues an OTP challenge.
func (h *Handlers) HandleSendOTP(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	destination := req.GetString("destination", "")
	if destination == "" {
		return mcp.NewToolResultError("destination is required"), nil
	}

	raw, err := h.client.SendOTP(ctx, destination)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send OTP: %v", err)), nil
	}

	var resp struct {
		ChallengeID string `json:"challenge_id"`
		DevCode     string `json:"dev_code"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "OTP challenge issued.\nChallenge ID: %s\n", resp.ChallengeID)
	if resp.DevCode != "" {
		fmt.Fprintf(&sb, "Dev code (non-production only): %s\n", resp.DevCode)
	}
	sb.WriteString("\nAsk the cardholder for the code they received, then call verify_otp.")
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleVerifyOTP checks a presented code.
func (h *Handlers) HandleVerifyOTP(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	challengeID := req.GetString("challenge_id", "")
	code := req.GetString("code", "")
	if challengeID == "" || code == "" {
		return mcp.NewToolResultError("challenge_id and code are required"), nil
	}

	raw, err := h.client.VerifyOTP(ctx, challengeID, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to verify OTP: %v", err)), nil
	}

	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	if resp.Valid {
		return mcp.NewToolResultText("Code verified. The transaction may proceed."), nil
	}
	return mcp.NewToolResultText(
		"Code rejected. The code is wrong, expired, or the challenge is no longer usable. " +
			"Issue a new challenge with send_otp if the cardholder needs another try."), nil
}

// HandleListRecentDecisions lists recent gate decisions.
func (h *Handlers) HandleListRecentDecisions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(floatArg(req.GetArguments(), "limit"))
	if limit <= 0 {
		limit = 20
	}

	raw, err := h.client.ListDecisions(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list decisions: %v", err)), nil
	}

	text, err := formatDecisionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decisions: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// ---------------------------------------------------------------------------
// Formatting helpers
// ---------------------------------------------------------------------------

type assessmentView struct {
	ID             string    `json:"id"`
	Probability    float64   `json:"probability"`
	ScorerDegraded bool      `json:"scorerDegraded"`
	SpikeFlag      bool      `json:"spikeFlag"`
	AvgLastN       *float64  `json:"avgLastN"`
	Label          string    `json:"label"`
	EvaluatedAt    time.Time `json:"evaluatedAt"`
}

func formatAssessment(raw json.RawMessage) (string, error) {
	var resp struct {
		Assessment assessmentView `json:"assessment"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	a := resp.Assessment

	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision: %s\n", strings.ToUpper(a.Label))
	fmt.Fprintf(&sb, "Fraud probability: %.4f\n", a.Probability)
	if a.ScorerDegraded {
		sb.WriteString("Classifier: unavailable (decision made on the spike rule alone)\n")
	}
	if a.SpikeFlag {
		if a.AvgLastN != nil {
			fmt.Fprintf(&sb, "Spike rule: FIRED (recent average %.2f)\n", *a.AvgLastN)
		} else {
			sb.WriteString("Spike rule: FIRED\n")
		}
	} else {
		sb.WriteString("Spike rule: not triggered\n")
	}
	fmt.Fprintf(&sb, "Assessment ID: %s\n", a.ID)
	if a.Label == "challenge" {
		sb.WriteString("\nThis transaction requires step-up verification. Use send_otp to challenge the cardholder.")
	}
	return sb.String(), nil
}

func formatDecisionList(raw json.RawMessage) (string, error) {
	var resp struct {
		Assessments []assessmentView `json:"assessments"`
		Count       int              `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Assessments) == 0 {
		return "No recent decisions.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d recent decisions:\n\n", len(resp.Assessments))
	for _, a := range resp.Assessments {
		marker := " "
		if a.SpikeFlag {
			marker = "!"
		}
		fmt.Fprintf(&sb, "%s %-9s p=%.4f %s %s\n",
			marker, a.Label, a.Probability, a.EvaluatedAt.Format(time.RFC3339), a.ID)
	}
	return sb.String(), nil
}

func floatArg(args map[string]any, key string) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return 0
}
