package oracle

import (
	"strings"

	"github.com/insightdelivered/bank-statement-extractor/internal/models"
)

const systemPrompt = `You extract the transactions of a Colombian bank statement.
Respond only with JSON of the form {"transactions":[{"date":"...","detail":"...","movement":0,"balance":0}]}.
- Keep the order in which transactions appear in the statement.
- "date": the transaction date exactly as printed.
- "detail": the full description exactly as printed, without truncation.
- "movement": the signed amount of the transaction as a number, negative for debits and positive for credits unless the statement says otherwise.
- "balance": the running balance printed for the transaction as a number.
- Do not invent transactions and do not include opening or closing balance lines.
- If the statement lists no transactions, respond with {"transactions":[]}.`

func (c *Client) userPrompt(text string, bank models.Bank) string {
	profile := c.profiles[bank]

	var prompt strings.Builder
	prompt.WriteString("Bank: ")
	prompt.WriteString(string(bank))
	prompt.WriteString("\nAmounts in this statement use a decimal ")
	prompt.WriteString(profile.Format.String())
	prompt.WriteString(".")
	if profile.Notes != "" {
		prompt.WriteString("\n")
		prompt.WriteString(profile.Notes)
	}
	prompt.WriteString("\n\nStatement:\n")
	prompt.WriteString(text)
	return prompt.String()
}
