package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kilohq/kilo/internal/llm"
	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/pkg/models"
)

// APIInfo is the structured result of documentation analysis.
type APIInfo struct {
	ServiceName      string                `json:"service_name"`
	BaseURL          string                `json:"base_url"`
	AuthType         models.AuthType       `json:"auth_type"`
	AuthInstructions string                `json:"auth_instructions,omitempty"`
	Endpoints        []models.ToolEndpoint `json:"endpoints"`
	RateLimits       string                `json:"rate_limits,omitempty"`
	Confidence       float64               `json:"confidence"`
	Sources          []string              `json:"sources,omitempty"`
}

// Finding bundles everything a completed research run produced.
type Finding struct {
	API    *APIInfo
	Skills []*models.SkillProposal
}

// Researcher drives the search → fetch → analyze → propose pipeline that
// turns a service name into an API binding plus skill proposals.
type Researcher struct {
	searcher *Searcher
	fetcher  *Fetcher
	gateway  llm.Port
	logger   *observability.Logger
}

func NewResearcher(searcher *Searcher, fetcher *Fetcher, gateway llm.Port, logger *observability.Logger) *Researcher {
	return &Researcher{searcher: searcher, fetcher: fetcher, gateway: gateway, logger: logger}
}

// Research runs the full pipeline for a search query like "Canva API".
// The query is used verbatim; the clarification resolver already shaped it.
// Errors carry the failing stage in their details.
func (r *Researcher) Research(ctx context.Context, serviceName, query string) (*Finding, error) {
	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, stageErr("search", nil, "no search results for "+query)
	}

	pages, err := r.fetcher.FetchPages(ctx, results)
	if err != nil {
		return nil, err
	}
	r.logger.Info(ctx, "documentation fetched",
		"service", serviceName, "pages", len(pages))

	info, err := r.analyze(ctx, serviceName, pages)
	if err != nil {
		return nil, err
	}

	skills, err := r.proposeSkills(ctx, info)
	if err != nil {
		return nil, err
	}

	return &Finding{API: info, Skills: skills}, nil
}

// outputAPIInfoSchema constrains the analysis turn to structured output.
var outputAPIInfoSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"baseUrl": {"type": "string", "description": "Root URL of the API, e.g. https://api.example.com"},
		"authType": {"type": "string", "enum": ["api_key", "bearer", "oauth2", "custom_header"]},
		"authInstructions": {"type": "string", "description": "How to obtain and send credentials"},
		"endpoints": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"method": {"type": "string"},
					"description": {"type": "string"}
				},
				"required": ["path", "method"]
			}
		},
		"rateLimits": {"type": "string"},
		"confidence": {"type": "number", "description": "0-1 confidence that the extraction is accurate"}
	},
	"required": ["baseUrl", "authType", "endpoints", "confidence"]
}`)

// Prompt bounds for the analysis turn.
const (
	maxAnalysisChars  = 30000
	maxAnalysisBlocks = 10
)

func (r *Researcher) analyze(ctx context.Context, serviceName string, pages []Page) (*APIInfo, error) {
	var b strings.Builder
	sources := make([]string, 0, len(pages))
	budget := maxAnalysisChars
	for i, page := range pages {
		sources = append(sources, page.URL)
		if budget <= 0 {
			continue
		}
		text := page.Text
		if len(text) > budget {
			text = text[:budget]
		}
		budget -= len(text)
		header := page.Title
		if header == "" {
			header = page.URL
		}
		fmt.Fprintf(&b, "## Document %d: %s\n\n%s\n\n", i+1, header, text)
	}
	blocks := 0
	for _, page := range pages {
		if blocks >= maxAnalysisBlocks {
			break
		}
		if len(page.CodeBlocks) == 0 {
			continue
		}
		b.WriteString("### Code examples\n")
		for _, block := range page.CodeBlocks {
			if blocks >= maxAnalysisBlocks {
				break
			}
			b.WriteString("```\n" + block + "\n```\n")
			blocks++
		}
	}

	req := &llm.Request{
		System: "You extract REST API facts from documentation. " +
			"Report only what the documents state; never invent endpoints. " +
			"Respond by calling output_api_info exactly once.",
		Messages: []llm.Message{{
			Role: models.RoleUser,
			Content: fmt.Sprintf("Extract the API details for %s from these documents:\n\n%s",
				serviceName, b.String()),
		}},
		Tools: []llm.ToolDef{{
			Name:        "output_api_info",
			Description: "Report the extracted API structure",
			Parameters:  outputAPIInfoSchema,
		}},
	}

	resp, err := r.gateway.Complete(ctx, models.TaskDocExtraction, req)
	if err != nil {
		return nil, stageErr("analyze", err, "documentation analysis failed")
	}

	call := findToolCall(resp, "output_api_info")
	if call == nil {
		return nil, stageErr("analyze", nil, "model did not produce structured API info")
	}

	var raw struct {
		BaseURL          string `json:"baseUrl"`
		AuthType         string `json:"authType"`
		AuthInstructions string `json:"authInstructions"`
		Endpoints        []struct {
			Path        string `json:"path"`
			Method      string `json:"method"`
			Description string `json:"description"`
		} `json:"endpoints"`
		RateLimits string  `json:"rateLimits"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(call.Input, &raw); err != nil {
		return nil, stageErr("analyze", err, "parse API info")
	}

	info := &APIInfo{
		ServiceName:      serviceName,
		BaseURL:          strings.TrimSuffix(strings.TrimSpace(raw.BaseURL), "/"),
		AuthType:         models.AuthType(raw.AuthType),
		AuthInstructions: raw.AuthInstructions,
		RateLimits:       raw.RateLimits,
		Confidence:       clamp01(raw.Confidence),
		Sources:          sources,
	}
	if !info.AuthType.Valid() {
		info.AuthType = models.AuthBearer
	}
	for _, ep := range raw.Endpoints {
		path := strings.TrimSpace(ep.Path)
		if path == "" {
			continue
		}
		info.Endpoints = append(info.Endpoints, models.ToolEndpoint{
			Path:        path,
			Method:      strings.ToUpper(strings.TrimSpace(ep.Method)),
			Description: ep.Description,
		})
	}

	if info.BaseURL == "" {
		return nil, stageErr("analyze", nil, "extraction produced no base URL")
	}
	if len(info.Endpoints) == 0 {
		return nil, stageErr("analyze", nil, "extraction produced no endpoints")
	}
	return info, nil
}

var outputSkillsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"skills": {
			"type": "array",
			"minItems": 1,
			"maxItems": 5,
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"description": {"type": "string"},
					"triggerPatterns": {"type": "array", "items": {"type": "string"}, "minItems": 2},
					"behaviorPrompt": {"type": "string"},
					"outputFormat": {"type": "string", "enum": ["text", "structured_card", "notification", "action"]}
				},
				"required": ["name", "description", "triggerPatterns", "behaviorPrompt"]
			}
		}
	},
	"required": ["skills"]
}`)

func (r *Researcher) proposeSkills(ctx context.Context, info *APIInfo) ([]*models.SkillProposal, error) {
	slug := Slug(info.ServiceName)

	var catalog strings.Builder
	for _, ep := range info.Endpoints {
		catalog.WriteString("- " + ep.Method + " " + ep.Path)
		if ep.Description != "" {
			catalog.WriteString(": " + ep.Description)
		}
		catalog.WriteString("\n")
	}

	req := &llm.Request{
		System: "You design assistant skills that use a newly learned API. " +
			"Each skill should cover one user-facing capability. " +
			"Respond by calling output_skills exactly once.",
		Messages: []llm.Message{{
			Role: models.RoleUser,
			Content: fmt.Sprintf("Service: %s\nBase URL: %s\nEndpoints:\n%s\nPropose 1-5 skills a personal assistant could offer with this API.",
				info.ServiceName, info.BaseURL, catalog.String()),
		}},
		Tools: []llm.ToolDef{{
			Name:        "output_skills",
			Description: "Report the proposed skills",
			Parameters:  outputSkillsSchema,
		}},
	}

	resp, err := r.gateway.Complete(ctx, models.TaskSkillGeneration, req)
	if err != nil {
		return nil, stageErr("propose", err, "skill proposal failed")
	}

	call := findToolCall(resp, "output_skills")
	if call == nil {
		return nil, stageErr("propose", nil, "model did not produce skill proposals")
	}

	var raw struct {
		Skills []struct {
			Name            string   `json:"name"`
			Description     string   `json:"description"`
			TriggerPatterns []string `json:"triggerPatterns"`
			BehaviorPrompt  string   `json:"behaviorPrompt"`
			OutputFormat    string   `json:"outputFormat"`
		} `json:"skills"`
	}
	if err := json.Unmarshal(call.Input, &raw); err != nil {
		return nil, stageErr("propose", err, "parse skill proposals")
	}

	proposals := make([]*models.SkillProposal, 0, len(raw.Skills))
	for _, s := range raw.Skills {
		if s.Name == "" || len(s.TriggerPatterns) == 0 {
			continue
		}
		format := models.OutputFormat(s.OutputFormat)
		if !format.Valid() {
			format = models.OutputText
		}
		proposals = append(proposals, &models.SkillProposal{
			Name:                 s.Name,
			Description:          s.Description,
			TriggerPatterns:      s.TriggerPatterns,
			BehaviorPrompt:       s.BehaviorPrompt,
			OutputFormat:         format,
			RequiredIntegrations: []string{slug},
			Confidence:           info.Confidence,
		})
		if len(proposals) == 5 {
			break
		}
	}
	if len(proposals) == 0 {
		return nil, stageErr("propose", nil, "no usable skill proposals")
	}
	return proposals, nil
}

var slugRuns = regexp.MustCompile(`[a-z0-9]+`)

// Slug turns "Google Calendar" into "google_calendar" for integration names.
func Slug(name string) string {
	parts := slugRuns.FindAllString(strings.ToLower(name), -1)
	return strings.Join(parts, "_")
}

func findToolCall(resp *llm.Response, name string) *llm.ToolCall {
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Name == name {
			return &resp.ToolCalls[i]
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
