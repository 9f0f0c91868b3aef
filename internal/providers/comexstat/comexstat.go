package comexstat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"comexexport/internal/model"
	"comexexport/internal/providers"
)

const (
	defaultBaseURL             = "https://api-comexstat.mdic.gov.br"
	defaultFiltersPath         = "general/filters/{filter}"
	defaultGeneralPath         = "general"
	defaultFetchTimeoutSeconds = 30
	defaultQueryTimeoutSeconds = 60
	defaultUserAgent           = "comexexport/0.1"

	DimensionCountry = "country"
	GroupChapter     = "chapter"
	GroupYear        = "year"
	MetricFOB        = "fob"
)

var ErrInvalidJSON = errors.New("comexstat: response is not valid json")

type Config struct {
	BaseURL      string
	FiltersPath  string
	GeneralPath  string
	FetchTimeout time.Duration
	QueryTimeout time.Duration
	UserAgent    string
}

type Provider struct {
	config Config
	client *http.Client
}

func New() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("comexstat: invalid base url %q: %w", cfg.BaseURL, err)
	}
	if strings.TrimSpace(cfg.FiltersPath) == "" {
		cfg.FiltersPath = defaultFiltersPath
	}
	if strings.TrimSpace(cfg.GeneralPath) == "" {
		cfg.GeneralPath = defaultGeneralPath
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeoutSeconds * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Provider{
		config: cfg,
		client: &http.Client{},
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:     getenv("COMEXSTAT_BASE_URL", defaultBaseURL),
		FiltersPath: getenv("COMEXSTAT_FILTERS_PATH", defaultFiltersPath),
		GeneralPath: getenv("COMEXSTAT_GENERAL_PATH", defaultGeneralPath),
		UserAgent:   getenv("COMEXSTAT_USER_AGENT", defaultUserAgent),
	}
	cfg.FetchTimeout = time.Duration(getenvInt("COMEXSTAT_FETCH_TIMEOUT_SECONDS", defaultFetchTimeoutSeconds)) * time.Second
	cfg.QueryTimeout = time.Duration(getenvInt("COMEXSTAT_QUERY_TIMEOUT_SECONDS", defaultQueryTimeoutSeconds)) * time.Second
	return cfg, nil
}

func (p *Provider) Name() string {
	return "comexstat"
}

// ListFilterValues fetches the enumerated values of one filter dimension.
func (p *Provider) ListFilterValues(ctx context.Context, dimension, language string) (model.FilterSet, error) {
	dimension = strings.TrimSpace(dimension)
	if dimension == "" {
		return model.FilterSet{}, errors.New("comexstat: filter dimension is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	path := strings.ReplaceAll(p.config.FiltersPath, "{filter}", url.PathEscape(dimension))
	params := url.Values{}
	if strings.TrimSpace(language) != "" {
		params.Set("language", language)
	}

	body, err := p.doRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return model.FilterSet{}, err
	}
	return parseFilterSet(body)
}

// QueryGeneral posts spec to the aggregation endpoint and returns the body as is.
func (p *Provider) QueryGeneral(ctx context.Context, spec model.QuerySpec) (model.RawResponse, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()

	body, err := p.doRequest(ctx, http.MethodPost, p.config.GeneralPath, nil, payload)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return model.RawResponse(body), fmt.Errorf("%w: %s", ErrInvalidJSON, truncate(strings.TrimSpace(string(body)), 200))
	}
	return model.RawResponse(body), nil
}

// NewExportQuery builds the export-by-chapter-and-year request for one entry of
// the dimension filter list. The entry's value is forwarded under "values"
// without checking that the query endpoint uses the same key naming as the
// filters endpoint. An empty dimension means DimensionCountry.
func NewExportQuery(dimension string, entry model.FilterEntry, startYear, endYear, perPage int, language string) model.QuerySpec {
	if strings.TrimSpace(dimension) == "" {
		dimension = DimensionCountry
	}
	value := json.RawMessage("null")
	if trimmed := bytes.TrimSpace(entry.Value); len(trimmed) > 0 {
		value = append(json.RawMessage(nil), trimmed...)
	}
	return model.QuerySpec{
		Flow:    model.FlowExport,
		GroupBy: []string{GroupChapter, GroupYear},
		Metrics: []string{MetricFOB},
		Filters: []model.FilterClause{
			{Filter: dimension, Values: []json.RawMessage{value}},
		},
		StartYear:  startYear,
		EndYear:    endYear,
		Pagination: model.Pagination{Page: 1, PerPage: perPage},
		Language:   language,
	}
}

func (p *Provider) doRequest(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, error) {
	endpoint := p.buildURL(path, params)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("comexstat: request failed (%s): %s", resp.Status, truncate(strings.TrimSpace(string(body)), 500))
	}
	return body, nil
}

func (p *Provider) buildURL(path string, params url.Values) string {
	endpoint := strings.TrimRight(p.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return endpoint
}

// parseFilterSet accepts {"data":{"list":[...]}} and {"data":[...]}. Any other
// payload is handed back in FilterSet.Raw.
func parseFilterSet(body []byte) (model.FilterSet, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		if !json.Valid(body) {
			return model.FilterSet{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return model.FilterSet{Raw: json.RawMessage(body)}, nil
	}

	data, ok := envelope["data"]
	if !ok {
		return model.FilterSet{Raw: json.RawMessage(body)}, nil
	}

	switch firstByte(data) {
	case '{':
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data, &inner); err != nil {
			return model.FilterSet{}, err
		}
		if list, ok := inner["list"]; ok && firstByte(list) == '[' {
			return entriesFrom(list)
		}
	case '[':
		return entriesFrom(data)
	}
	return model.FilterSet{Raw: data}, nil
}

func entriesFrom(list json.RawMessage) (model.FilterSet, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return model.FilterSet{}, err
	}

	entries := make([]model.FilterEntry, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if firstByte(item) != '{' || json.Unmarshal(item, &fields) != nil {
			continue
		}
		entries = append(entries, model.FilterEntry{
			Text:  scalarText(fields["text"]),
			Label: scalarText(fields["label"]),
			Value: fields["value"],
			Raw:   item,
		})
	}
	return model.FilterSet{Entries: entries}, nil
}

func scalarText(raw json.RawMessage) string {
	switch firstByte(raw) {
	case 0, 'n', '{', '[':
		return ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(string(raw))
	}
}

func firstByte(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// truncate cuts value to at most limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "..."
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

var _ providers.Provider = (*Provider)(nil)
