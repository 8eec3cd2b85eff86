package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Cyvadra/marketminds/internal/models"
)

// PromptHistory is how many previous messages the chat instruction embeds
const PromptHistory = 3

const personaPrompt = `You are MarketMinds AI, an expert trading assistant with deep knowledge of:
- ICT (Inner Circle Trader) concepts and methodology
- SMC (Smart Money Concepts) and institutional order flow
- Multi-timeframe analysis (HTF, LTF structure)
- Price action trading and market structure
- Risk and money management principles
- Fundamental and technical analysis
- Market sentiment and news impact
- Trading psychology and discipline

Provide professional, actionable trading insights. Be concise but thorough.
Focus on practical trading advice that can be implemented immediately.
Always emphasize proper risk management in your responses.`

type promptMessage struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ChatInstruction builds the system instruction for a chat request
func ChatInstruction(c models.ChatContext) string {
	var b strings.Builder
	b.WriteString(personaPrompt)
	b.WriteString("\n\n")

	if c.TradingContext {
		fmt.Fprintf(&b, "Current trading context: Symbol: %s, Timeframe: %s\n\n",
			orNA(c.Symbol), orNA(c.Timeframe))
	}

	b.WriteString("Previous conversation context: ")
	if len(c.PreviousMessages) == 0 {
		b.WriteString("None")
		return b.String()
	}

	window := c.PreviousMessages
	if len(window) > PromptHistory {
		window = window[len(window)-PromptHistory:]
	}
	compact := make([]promptMessage, len(window))
	for i, m := range window {
		compact[i] = promptMessage{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	data, err := json.Marshal(compact)
	if err != nil {
		b.WriteString("None")
		return b.String()
	}
	b.Write(data)
	return b.String()
}

// FileInstruction is the analysis instruction paired with an uploaded file
func FileInstruction(mimeType string) string {
	subject := "financial document"
	if strings.Contains(mimeType, "image") {
		subject = "trading chart or financial image"
	}
	return fmt.Sprintf(`Analyze this %s and provide relevant trading insights.

Focus on:
1. Technical patterns and formations
2. Support and resistance levels
3. Trend analysis and market structure
4. Entry and exit opportunities
5. Risk management considerations
6. Any SMC or ICT concepts visible

Provide actionable trading information based on what you observe.`, subject)
}

// MarketPrompt asks for a brief snapshot of symbol
func MarketPrompt(symbol, timeframe string) string {
	return fmt.Sprintf(`Provide a brief market analysis for %s on the %s timeframe.
Include current market sentiment, key levels to watch, and potential trading opportunities.
Keep it concise and actionable for traders.`, symbol, timeframe)
}

// NewsPrompt asks for the market impact of a news item
func NewsPrompt(newsText string, symbols []string) string {
	focus := ""
	if len(symbols) > 0 {
		focus = fmt.Sprintf("Focus on potential impacts to these assets: %s.\n\n", strings.Join(symbols, ", "))
	}
	return fmt.Sprintf(`Analyze this financial news and explain its potential market impact:

%q

Please provide:
1. Summary of the key points
2. Potential market implications (bullish/bearish/neutral)
3. Which asset classes might be affected
4. Short-term vs long-term impact assessment
5. Trading opportunities or risks to consider

%sKeep the analysis concise but comprehensive for trading decisions.`, newsText, focus)
}

// RiskPrompt asks for guidance on the computed risk figures
func RiskPrompt(req *models.RiskManagementRequest, plan RiskPlan) string {
	var b strings.Builder
	b.WriteString("Calculate and explain risk management parameters for a trading account:\n\n")
	fmt.Fprintf(&b, "- Account Size: $%s\n", formatAmount(req.AccountSize))
	fmt.Fprintf(&b, "- Risk per Trade: %s%%\n", strconv.FormatFloat(req.RiskPercentage, 'f', -1, 64))
	fmt.Fprintf(&b, "- Maximum Dollar Risk: $%.2f\n", plan.MaxRiskAmount)
	fmt.Fprintf(&b, "- Trade Type: %s\n", req.TradeType)
	if req.EntryPrice != nil {
		fmt.Fprintf(&b, "- Entry Price: $%s\n", strconv.FormatFloat(*req.EntryPrice, 'f', -1, 64))
	}
	if req.StopLoss != nil {
		fmt.Fprintf(&b, "- Stop Loss: $%s\n", strconv.FormatFloat(*req.StopLoss, 'f', -1, 64))
	}
	if plan.PositionSize != nil {
		fmt.Fprintf(&b, "- Calculated Position Size: %.4f units\n", *plan.PositionSize)
	}
	b.WriteString(`
Provide comprehensive risk management guidance including:
1. Position sizing recommendations
2. Daily/weekly risk limits
3. Drawdown protection strategies
4. Money management best practices for this account size
5. Risk/reward ratio recommendations

Format the response as actionable trading rules.`)
	return b.String()
}

// EducationPrompt asks for an explanation of topic at level
func EducationPrompt(topic string, level models.EducationLevel) string {
	return fmt.Sprintf(`Provide an educational explanation about %q for %s level traders.

Structure your response with:
1. Clear definition and key concepts
2. Practical examples and applications
3. Step-by-step implementation guide
4. Common mistakes to avoid
5. Advanced tips (if applicable)

Focus on actionable knowledge that can be applied in real trading scenarios.
Use simple language but maintain technical accuracy.`, topic, level)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// formatAmount renders v with thousands separators, e.g. 12500.5 as 12,500.5
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}
