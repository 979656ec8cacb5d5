package pipeline

import (
	"fmt"
	"strings"
)

const detailedAnalysisPrompt = `Analyze the provided product information and identify the customer segments with the highest revenue potential. Ground every number in real market data.

1. Product understanding
   - Visual elements, features and quality level from the image or description.
   - Key attributes and value propositions.
   - A realistic price point based on comparable products and current pricing.

2. Market size
   - Total addressable market from published research, industry statistics, public filings or government data.
   - Year-over-year growth, cross-checked against more than one source.

3. Customer segments and revenue potential
   - For each segment: average purchase value, purchase frequency, segment size and conservative annual revenue.
   - Back each estimate with comparable products, benchmarks or spending patterns.
   - Give each segment's share of total revenue and keep only the segments within the top 80% of cumulative revenue.

4. Market penetration
   - Customer acquisition costs, competitors, barriers to entry and saturation.

Err on the conservative side and account for regional, seasonal and economic differences.`

const revenueSegmentsPrompt = `Extract the customer segments that make up the top 80% of total revenue potential from the analysis below.

For each segment give:
- A specific name naming the primary demographic.
- Revenue potential per year with the calculation shown: average purchase, purchase frequency and segment size.
- A short value proposition: pain points addressed, revenue rationale and market positioning.

Format each segment EXACTLY as follows, with no introductory text:
[Segment Name - Primary Demographic]
Revenue Potential: $X million/year (calculation)
- Avg Purchase: $X
- Frequency: X purchases/year
- Segment Size: X customers
[Value proposition in up to three lines]

Order segments from highest to lowest revenue potential and start directly with the first segment in brackets.

Here's the analysis:
`

const personaPromptTemplate = `Create a concise but detailed persona for this customer segment:

Segment: %s
Value Proposition & Characteristics: %s

The persona will be used as a prompt for an LLM to simulate a member of this segment. Cover:
1. Background: name, age, occupation, income, lifestyle and location.
2. Psychology: values, motivations, pain points, decision-making style and technology adoption.
3. Shopping behavior: research process, decision factors, price sensitivity, brand loyalty and response to marketing.
4. Product expectations: must-have features, quality, price-to-value and service.

Write it as a second-person narrative starting with:
"You are [name], a [age]-year-old [occupation]..."`

// inputText frames the user's text for the detailed analysis call. Text that
// looks like a URL is presented as a company website.
func inputText(in Input) string {
	text := strings.TrimSpace(in.Text)
	switch {
	case in.Website != "" && text != "":
		return fmt.Sprintf("Based on the company website: %s\n\n%s", in.Website, text)
	case in.Website != "":
		return "Based on the company website: " + in.Website
	case text == "":
		return ""
	case strings.HasPrefix(text, "http"):
		return "Based on the company website: " + text
	default:
		return "Based on the product description: " + text
	}
}

func personaPrompt(name, valueProposition string) string {
	return fmt.Sprintf(personaPromptTemplate, name, valueProposition)
}
