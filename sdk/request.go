package sdk

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/httye/fetchplayers/internal/cache"
)

// Request limits
const (
	// MaxBatchSize is the largest number of usernames sent in one batch
	MaxBatchSize = 50

	// MinHistoryLimit and MaxHistoryLimit bound the limit parameter of
	// history queries
	MinHistoryLimit = 1
	MaxHistoryLimit = 100
)

// Operation names. They label spans, metrics and cache keys.
const (
	OpUserInfo        = "user_info"
	OpUserLevel       = "user_level"
	OpUserLocation    = "user_location"
	OpUserInventory   = "user_inventory"
	OpLoginRecords    = "login_records"
	OpOnlinePlayers   = "online_players"
	OpServerStatus    = "server_status"
	OpSecurityInfo    = "security_info"
	OpChatRecords     = "chat_records"
	OpServerResources = "server_resources"
	OpBatchQuery      = "batch_query"
	OpExport          = "export"
)

// BatchPolicy decides what happens to a batch larger than MaxBatchSize
type BatchPolicy int

const (
	// BatchReject fails the call with a validation error
	BatchReject BatchPolicy = iota
	// BatchTruncate sends the first MaxBatchSize usernames
	BatchTruncate
)

// String returns the policy name
func (p BatchPolicy) String() string {
	switch p {
	case BatchTruncate:
		return "truncate"
	default:
		return "reject"
	}
}

// ParseBatchPolicy parses "reject" or "truncate"
func ParseBatchPolicy(s string) (BatchPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return BatchReject, true
	case "truncate":
		return BatchTruncate, true
	default:
		return BatchReject, false
	}
}

// Params is an ordered set of query parameters. Setting an existing key
// replaces its value in place.
type Params struct {
	keys   []string
	values map[string]string
}

// Set adds or replaces a parameter
func (p *Params) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value of key
func (p Params) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Len returns the number of parameters
func (p Params) Len() int {
	return len(p.keys)
}

// Encode renders the parameters as a query string in insertion order
func (p Params) Encode() string {
	var b strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.values[k]))
	}
	return b.String()
}

// RequestSpec fully describes one logical request before the credential
// is attached.
type RequestSpec struct {
	// Operation names the client operation, e.g. OpUserInfo
	Operation string
	// Method is GET or POST
	Method string
	// Path is appended to the base URL
	Path string
	// Query holds the query parameters, credential excluded
	Query Params
	// Body is the JSON body of POST requests
	Body []byte
	// Raw skips structured decoding of the response
	Raw bool
	// CacheKey is empty for requests that are never cached
	CacheKey string
}

// Cacheable reports whether the response may be cached
func (s *RequestSpec) Cacheable() bool {
	return s.CacheKey != ""
}

// QueryType selects what a batch query returns per player
type QueryType string

// Batch query types
const (
	QueryInfo      QueryType = "info"
	QueryLevel     QueryType = "level"
	QueryLocation  QueryType = "location"
	QueryInventory QueryType = "inventory"
)

// ResourceType selects a server resource snapshot
type ResourceType string

// Server resource types
const (
	ResourceAll    ResourceType = "all"
	ResourceMemory ResourceType = "memory"
	ResourceCPU    ResourceType = "cpu"
	ResourceTPS    ResourceType = "tps"
)

// ExportType selects the data set of an export
type ExportType string

// Export data sets
const (
	ExportPlayers       ExportType = "players"
	ExportLoginRecords  ExportType = "login-records"
	ExportOnlinePlayers ExportType = "online-players"
)

// ExportFormat selects the export encoding
type ExportFormat string

// Export encodings
const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// ChatQuery selects chat history. Either Username or All must be set.
type ChatQuery struct {
	Username string
	All      bool
	// Limit is clamped into [1, 100] when non-zero; zero leaves it to the server
	Limit int
}

// ExportQuery selects an export. Empty Type and Format default to players
// and json.
type ExportQuery struct {
	Type     ExportType
	Format   ExportFormat
	Username string
}

// batchBody is the JSON body of a batch query
type batchBody struct {
	Usernames []string  `json:"usernames"`
	QueryType QueryType `json:"queryType"`
}

type usernameInput struct {
	Username string `validate:"required"`
}

type batchInput struct {
	Usernames []string  `validate:"required,min=1,dive,required"`
	QueryType QueryType `validate:"oneof=info level location inventory"`
}

type resourceInput struct {
	Type ResourceType `validate:"oneof=all memory cpu tps"`
}

type exportInput struct {
	Type   ExportType   `validate:"oneof=players login-records online-players"`
	Format ExportFormat `validate:"oneof=json csv"`
}

// requestBuilder turns operation arguments into RequestSpecs. It never
// touches the network.
type requestBuilder struct {
	batchPolicy BatchPolicy
}

// clampLimit bounds a history limit into [MinHistoryLimit, MaxHistoryLimit]
func clampLimit(limit int) int {
	if limit < MinHistoryLimit {
		return MinHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func checkInput(v interface{}) error {
	if err := validateStruct(v); err != nil {
		return validationError("%v", err)
	}
	return nil
}

func checkUsername(username string) error {
	return checkInput(usernameInput{Username: strings.TrimSpace(username)})
}

// userLookup builds one of the cacheable per-player GETs
func (b requestBuilder) userLookup(op, path, username string) (*RequestSpec, error) {
	if err := checkUsername(username); err != nil {
		return nil, err
	}
	spec := &RequestSpec{
		Operation: op,
		Method:    http.MethodGet,
		Path:      path,
		CacheKey:  cache.Key(op, username),
	}
	spec.Query.Set("username", username)
	return spec, nil
}

func (b requestBuilder) userInfo(username string) (*RequestSpec, error) {
	return b.userLookup(OpUserInfo, "/user/info", username)
}

func (b requestBuilder) userLevel(username string) (*RequestSpec, error) {
	return b.userLookup(OpUserLevel, "/user/level", username)
}

func (b requestBuilder) userLocation(username string) (*RequestSpec, error) {
	return b.userLookup(OpUserLocation, "/user/location", username)
}

func (b requestBuilder) userInventory(username string) (*RequestSpec, error) {
	return b.userLookup(OpUserInventory, "/user/inventory", username)
}

func (b requestBuilder) loginRecords(username string, limit int) (*RequestSpec, error) {
	if err := checkUsername(username); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	spec := &RequestSpec{
		Operation: OpLoginRecords,
		Method:    http.MethodGet,
		Path:      "/user/login-records",
		CacheKey:  cache.Key(OpLoginRecords, username, strconv.Itoa(limit)),
	}
	spec.Query.Set("username", username)
	spec.Query.Set("limit", strconv.Itoa(limit))
	return spec, nil
}

func (b requestBuilder) simple(op, path string) *RequestSpec {
	return &RequestSpec{
		Operation: op,
		Method:    http.MethodGet,
		Path:      path,
	}
}

func (b requestBuilder) onlinePlayers() *RequestSpec {
	return b.simple(OpOnlinePlayers, "/online-players")
}

func (b requestBuilder) serverStatus() *RequestSpec {
	return b.simple(OpServerStatus, "/status")
}

func (b requestBuilder) securityInfo() *RequestSpec {
	spec := b.simple(OpSecurityInfo, "/security/info")
	spec.CacheKey = cache.Key(OpSecurityInfo)
	return spec
}

func (b requestBuilder) chatRecords(q ChatQuery) (*RequestSpec, error) {
	spec := b.simple(OpChatRecords, "/chat-records")
	switch {
	case q.All:
		spec.Query.Set("all", "true")
	case strings.TrimSpace(q.Username) != "":
		spec.Query.Set("username", q.Username)
	default:
		return nil, validationError("either a username or all players must be requested")
	}
	if q.Limit != 0 {
		spec.Query.Set("limit", strconv.Itoa(clampLimit(q.Limit)))
	}
	return spec, nil
}

func (b requestBuilder) serverResources(t ResourceType) (*RequestSpec, error) {
	if t == "" {
		t = ResourceAll
	}
	if err := checkInput(resourceInput{Type: t}); err != nil {
		return nil, err
	}
	spec := b.simple(OpServerResources, "/server/resources")
	spec.Query.Set("type", string(t))
	return spec, nil
}

// batch builds the batch POST. It returns the usernames actually sent,
// which differ from the input only under BatchTruncate.
func (b requestBuilder) batch(usernames []string, queryType QueryType) (*RequestSpec, []string, error) {
	if queryType == "" {
		queryType = QueryInfo
	}
	if err := checkInput(batchInput{Usernames: usernames, QueryType: queryType}); err != nil {
		return nil, nil, err
	}

	if len(usernames) > MaxBatchSize {
		if b.batchPolicy != BatchTruncate {
			return nil, nil, validationError("batch of %d usernames exceeds the maximum of %d", len(usernames), MaxBatchSize)
		}
		usernames = usernames[:MaxBatchSize]
	}

	sent := append([]string(nil), usernames...)
	body, err := json.Marshal(batchBody{Usernames: sent, QueryType: queryType})
	if err != nil {
		return nil, nil, NewError(ErrorTypeValidation, "failed to encode batch body", err)
	}

	return &RequestSpec{
		Operation: OpBatchQuery,
		Method:    http.MethodPost,
		Path:      "/user/batch",
		Body:      body,
	}, sent, nil
}

func (b requestBuilder) export(q ExportQuery) (*RequestSpec, error) {
	if q.Type == "" {
		q.Type = ExportPlayers
	}
	if q.Format == "" {
		q.Format = FormatJSON
	}
	if err := checkInput(exportInput{Type: q.Type, Format: q.Format}); err != nil {
		return nil, err
	}

	spec := b.simple(OpExport, "/export")
	spec.Raw = true
	spec.Query.Set("type", string(q.Type))
	spec.Query.Set("format", string(q.Format))
	if q.Username != "" {
		spec.Query.Set("username", q.Username)
	}
	return spec, nil
}
