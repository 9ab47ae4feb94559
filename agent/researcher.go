package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/etnz/foreignassets"
	"google.golang.org/genai"
)

// Researcher looks up the company behind a stock symbol.
type Researcher struct {
	client *genai.Client
	expert *Expert
}

// NewResearcher returns a Researcher using client.
func NewResearcher(client *genai.Client) *Researcher {
	return &Researcher{client: client, expert: NewCompanyExpert()}
}

// NewCompanyExpert returns the expert answering company profiles as JSON.
func NewCompanyExpert() *Expert {
	str := func(desc string) *genai.Schema { return &genai.Schema{Type: genai.TypeString, Description: desc} }
	return &Expert{
		Name:        "CompanyResearcher",
		Description: "Finds the registered office of the company issuing a listed stock.",
		ModelName:   model,
		Config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"known":    {Type: genai.TypeBoolean, Description: "false when the symbol is not a listed stock you know."},
					"name":     str("Legal name of the company."),
					"address":  str("Street address, city and state of the headquarters, on one line."),
					"zip_code": str("Postal code of the headquarters."),
					"country":  str("Country of the headquarters, in English, e.g. United States."),
					"nature":   str("Nature of the entity, e.g. Public Limited Company."),
				},
				Required: []string{"known", "name", "address", "zip_code", "country", "nature"},
			},
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: `
			You are a financial research assistant filling a tax declaration of foreign assets.
			Given a stock ticker, you give the legal name and the registered headquarters of the issuing company.
			Only answer what you are confident about, set known to false otherwise.
			`}}},
		},
	}
}

type companyAnswer struct {
	Known bool `json:"known"`
	foreignassets.Company
}

// Profile returns the company behind symbol.
func (r *Researcher) Profile(ctx context.Context, symbol string) (foreignassets.Company, error) {
	question := fmt.Sprintf("Which company issues the stock with ticker %q?", symbol)
	answer, err := r.expert.Ask(ctx, r.client, question)
	if err != nil {
		return foreignassets.Company{}, err
	}
	c, err := decodeCompany(answer)
	if err != nil {
		return foreignassets.Company{}, fmt.Errorf("cannot read the profile of %s: %w", symbol, err)
	}
	slog.Info("company profile researched", "symbol", symbol, "name", c.Name, "country", c.Country)
	return c, nil
}

// decodeCompany reads the JSON answer of the company expert.
func decodeCompany(answer string) (foreignassets.Company, error) {
	// some models still wrap JSON in a markdown fence.
	answer = strings.TrimSpace(answer)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimSuffix(strings.TrimPrefix(answer, "```"), "```")

	var a companyAnswer
	if err := json.Unmarshal([]byte(answer), &a); err != nil {
		return foreignassets.Company{}, err
	}
	if !a.Known || a.Name == "" {
		return foreignassets.Company{}, foreignassets.ErrUnavailable
	}
	return a.Company, nil
}
