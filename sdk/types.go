package sdk

import (
	"time"

	"github.com/goccy/go-json"
)

// Typed results for each endpoint. Fields the server omits for offline
// players are pointers so absence is distinguishable from zero.

// Location is a position in a world
type Location struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	World string  `json:"world,omitempty"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Enchantment is a single enchantment on an item
type Enchantment struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// InventoryItem is one occupied inventory slot
type InventoryItem struct {
	Slot          int           `json:"slot"`
	SlotType      string        `json:"slotType"`
	Type          string        `json:"type"`
	Amount        int           `json:"amount"`
	DisplayName   string        `json:"displayName"`
	Durability    *int          `json:"durability,omitempty"`
	MaxDurability *int          `json:"maxDurability,omitempty"`
	Enchantments  []Enchantment `json:"enchantments,omitempty"`
	Lore          []string      `json:"lore,omitempty"`
}

// PlayerActivity holds the fields every per-player lookup shares
type PlayerActivity struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`

	// CurrentSessionOnlineTime and TotalOnlineTime are seconds
	CurrentSessionOnlineTime *int64 `json:"currentSessionOnlineTime,omitempty"`
	TotalOnlineTime          *int64 `json:"totalOnlineTime,omitempty"`

	// Offline players only, Unix milliseconds
	FirstPlayed *int64 `json:"firstPlayed,omitempty"`
	LastPlayed  *int64 `json:"lastPlayed,omitempty"`
	IsOnline    *bool  `json:"isOnline,omitempty"`
}

// UserProfile is the response of /user/info
type UserProfile struct {
	PlayerActivity
	UUID        string          `json:"uuid"`
	DisplayName string          `json:"displayName"`
	Level       int             `json:"level"`
	Exp         float64         `json:"exp"`
	ExpToLevel  int             `json:"expToLevel"`
	Location    *Location       `json:"location,omitempty"`
	Inventory   []InventoryItem `json:"inventory,omitempty"`
	Health      float64         `json:"health"`
	MaxHealth   float64         `json:"maxHealth"`
	FoodLevel   int             `json:"foodLevel"`
	GameMode    string          `json:"gameMode"`
	Whitelisted *bool           `json:"whitelisted,omitempty"`
	Banned      *bool           `json:"banned,omitempty"`
	Op          *bool           `json:"op,omitempty"`
}

// LevelInfo is the response of /user/level
type LevelInfo struct {
	PlayerActivity
	Level           int     `json:"level"`
	Exp             float64 `json:"exp"`
	ExpToLevel      int     `json:"expToLevel"`
	TotalExperience int     `json:"totalExperience"`
}

// LocationInfo is the response of /user/location
type LocationInfo struct {
	PlayerActivity
	Location *Location `json:"location,omitempty"`
	World    string    `json:"world"`
	Biome    string    `json:"biome"`
}

// InventoryInfo is the response of /user/inventory. Offline players have
// an empty inventory.
type InventoryInfo struct {
	PlayerActivity
	Inventory []InventoryItem `json:"inventory"`
}

// LoginRecord is one session. LogoutTime reads "在线中" for the current
// session, which also sets IsOnline.
type LoginRecord struct {
	Username   string `json:"username"`
	PlayerID   string `json:"playerId"`
	IPAddress  string `json:"ipAddress"`
	LoginTime  string `json:"loginTime"`
	LogoutTime string `json:"logoutTime"`
	OnlineTime int64  `json:"onlineTime"`
	IsOnline   bool   `json:"isOnline,omitempty"`
}

// LoginRecords is the response of /user/login-records
type LoginRecords struct {
	Username     string        `json:"username"`
	Records      []LoginRecord `json:"records"`
	TotalRecords int           `json:"totalRecords"`
	IsOnline     bool          `json:"isOnline,omitempty"`
}

// OnlinePlayer is one entry of /online-players
type OnlinePlayer struct {
	Username        string `json:"username"`
	UUID            string `json:"uuid"`
	DisplayName     string `json:"displayName"`
	IPAddress       string `json:"ipAddress,omitempty"`
	LoginTime       string `json:"loginTime,omitempty"`
	OnlineTime      *int64 `json:"onlineTime,omitempty"`
	TotalOnlineTime int64  `json:"totalOnlineTime"`
}

// OnlinePlayers is the response of /online-players
type OnlinePlayers struct {
	Count   int            `json:"count"`
	Players []OnlinePlayer `json:"players"`
}

// Find returns the online entry for username
func (o *OnlinePlayers) Find(username string) (*OnlinePlayer, bool) {
	for i := range o.Players {
		if o.Players[i].Username == username {
			return &o.Players[i], true
		}
	}
	return nil, false
}

// ServerStatus is the response of /status
type ServerStatus struct {
	Status  string `json:"status"`
	Plugin  string `json:"plugin"`
	Version string `json:"version"`
}

// APIKeyInfo describes one configured key. The key itself is never sent.
type APIKeyInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Created     string `json:"created"`
	Active      bool   `json:"active"`
	LastUsed    string `json:"lastUsed"`
}

// SecurityInfo is the response of /security/info
type SecurityInfo struct {
	SecurityEnabled bool         `json:"securityEnabled"`
	TotalAPIKeys    int          `json:"totalApiKeys"`
	ActiveAPIKeys   int          `json:"activeApiKeys"`
	AllowedIPs      int          `json:"allowedIPs"`
	APIKeys         []APIKeyInfo `json:"apiKeys"`
}

// ChatMessage is one chat line
type ChatMessage struct {
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// ChatRecords is the response of /chat-records
type ChatRecords struct {
	Username      string        `json:"username,omitempty"`
	Messages      []ChatMessage `json:"messages"`
	Count         int           `json:"count"`
	TotalPlayers  *int          `json:"totalPlayers,omitempty"`
	TotalMessages *int          `json:"totalMessages,omitempty"`
	Description   string        `json:"description,omitempty"`
	ResponseTime  string        `json:"responseTime,omitempty"`
}

// ResourceInfo is one resource section. Values are preformatted by the
// server.
type ResourceInfo struct {
	Type                string `json:"type"`
	Used                string `json:"used,omitempty"`
	Max                 string `json:"max,omitempty"`
	Committed           string `json:"committed,omitempty"`
	Free                string `json:"free,omitempty"`
	UsagePercent        string `json:"usagePercent,omitempty"`
	NonHeapUsed         string `json:"nonHeapUsed,omitempty"`
	NonHeapMax          string `json:"nonHeapMax,omitempty"`
	AvailableProcessors *int   `json:"availableProcessors,omitempty"`
	SystemLoadAverage   string `json:"systemLoadAverage,omitempty"`
	OSName              string `json:"osName,omitempty"`
	OSVersion           string `json:"osVersion,omitempty"`
	OSArch              string `json:"osArch,omitempty"`
	CurrentTPS          string `json:"currentTps,omitempty"`
	TPS1m               string `json:"tps1m,omitempty"`
	TPS5m               string `json:"tps5m,omitempty"`
	TPS15m              string `json:"tps15m,omitempty"`
}

// ResourceSnapshot is the data of a type=all resources query
type ResourceSnapshot struct {
	Memory        *ResourceInfo `json:"memory,omitempty"`
	CPU           *ResourceInfo `json:"cpu,omitempty"`
	TPS           *ResourceInfo `json:"tps,omitempty"`
	ServerName    string        `json:"serverName"`
	ServerVersion string        `json:"serverVersion"`
	BukkitVersion string        `json:"bukkitVersion"`
	OnlinePlayers int           `json:"onlinePlayers"`
	MaxPlayers    int           `json:"maxPlayers"`
}

// ServerResources is the response of /server/resources. Data holds a
// ResourceSnapshot for type "all" and a ResourceInfo otherwise; use
// Snapshot or Section to decode it.
type ServerResources struct {
	Type         ResourceType    `json:"type"`
	Data         json.RawMessage `json:"data"`
	Timestamp    int64           `json:"timestamp"`
	Plugin       string          `json:"plugin"`
	Version      string          `json:"version"`
	ResponseTime string          `json:"responseTime,omitempty"`
}

// Snapshot decodes Data as a full snapshot
func (r *ServerResources) Snapshot() (*ResourceSnapshot, error) {
	var snap ResourceSnapshot
	if err := decodeResponse(OpServerResources, r.Data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Section decodes Data as a single resource section
func (r *ServerResources) Section() (*ResourceInfo, error) {
	var info ResourceInfo
	if err := decodeResponse(OpServerResources, r.Data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// BatchResult is the per-player entry of a batch query. Data is the
// payload of the matching single lookup when Success is true.
type BatchResult struct {
	Username string          `json:"username"`
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Decode unmarshals Data into out, e.g. a *UserProfile for queryType info
func (b *BatchResult) Decode(out interface{}) error {
	if !b.Success {
		return NewError(ErrorTypeAPI, b.Error, nil)
	}
	return decodeResponse(OpBatchQuery, b.Data, out)
}

// BatchResults is the response of POST /user/batch
type BatchResults struct {
	Results   []BatchResult `json:"results"`
	Total     int           `json:"total"`
	QueryType QueryType     `json:"queryType"`
}

// ServerSummary aggregates status, presence and security information
type ServerSummary struct {
	ServerStatus  *ServerStatus  `json:"server_status"`
	OnlinePlayers *OnlinePlayers `json:"online_players"`
	SecurityInfo  *SecurityInfo  `json:"security_info"`
	Timestamp     time.Time      `json:"timestamp"`
}
