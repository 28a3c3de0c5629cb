package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Fraudgate MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreTransaction = mcp.NewTool("score_transaction",
	mcp.WithDescription(
		"Evaluate a card transaction for fraud risk. "+
			"Returns the classifier probability, whether the amount spiked against recent history, "+
			"and the gate decision: 'allowed' or 'challenge' (requires OTP step-up)."),
	mcp.WithString("category",
		mcp.Required(),
		mcp.Description("Merchant category (e.g. 'grocery_pos', 'misc_net', 'travel')")),
	mcp.WithNumber("amt",
		mcp.Description("Transaction amount")),
	mcp.WithString("city",
		mcp.Description("Cardholder city")),
	mcp.WithString("state",
		mcp.Description("Cardholder state")),
	mcp.WithString("job",
		mcp.Description("Cardholder occupation")),
	mcp.WithNumber("hour",
		mcp.Description("Hour of day the transaction occurred (0-23)")),
	mcp.WithNumber("dow",
		mcp.Description("Day of week (0-6, Monday = 0)")),
	mcp.WithNumber("age",
		mcp.Description("Cardholder age in years")),
	mcp.WithArray("history",
		mcp.Description("Recent transaction amounts for this card, most recent first. Feeds the spike rule.")),
)

var ToolSendOTP = mcp.NewTool("send_otp",
	mcp.WithDescription(
		"Issue a one-time passcode challenge to a phone number. "+
			"Use after score_transaction returns 'challenge'. "+
			"Returns a challenge_id; the code itself goes to the cardholder out of band. "+
			"Fails with a retry_after if the destination was messaged too recently."),
	mcp.WithString("destination",
		mcp.Required(),
		mcp.Description("Phone number in E.164 format (e.g. '+15551234567')")),
)

var ToolVerifyOTP = mcp.NewTool("verify_otp",
	mcp.WithDescription(
		"Verify a one-time passcode the cardholder provided. "+
			"Returns valid true/false only; a correct code consumes the challenge and cannot be replayed."),
	mcp.WithString("challenge_id",
		mcp.Required(),
		mcp.Description("The challenge_id returned by send_otp")),
	mcp.WithString("code",
		mcp.Required(),
		mcp.Description("The 6-digit code the cardholder received")),
)

var ToolListRecentDecisions = mcp.NewTool("list_recent_decisions",
	mcp.WithDescription(
		"List recent fraud gate decisions with their probabilities, spike flags, and labels. "+
			"Useful for reviewing what the gate has been doing."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of decisions to return (default 20)")),
)
