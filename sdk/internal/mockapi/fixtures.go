package mockapi

import "fmt"

// Response bodies shaped like the UserInfoAPI plugin's output.

// ErrorBody is the JSON body of an error response
func ErrorBody(message string) map[string]interface{} {
	return map[string]interface{}{"error": message}
}

// RateLimitBody is the JSON body of a 429. A nil retryAfter omits the
// field.
func RateLimitBody(retryAfter interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"error":             "请求过于频繁，请稍后再试",
		"minuteRequests":    61,
		"hourRequests":      300,
		"requestsPerMinute": 60,
		"requestsPerHour":   1000,
	}
	if retryAfter != nil {
		body["retryAfter"] = retryAfter
	}
	return body
}

// ServerStatus is the /status body
func ServerStatus() map[string]interface{} {
	return map[string]interface{}{
		"status":  "online",
		"plugin":  "UserInfoAPI",
		"version": "1.0.0",
	}
}

// OnlinePlayer is one entry of the /online-players list
func OnlinePlayer(username string) map[string]interface{} {
	return map[string]interface{}{
		"username":        username,
		"uuid":            fmt.Sprintf("00000000-0000-0000-0000-%012d", len(username)),
		"displayName":     username,
		"ipAddress":       "127.0.0.1",
		"loginTime":       "2024-05-01 10:00:00",
		"onlineTime":      120,
		"totalOnlineTime": 3600,
	}
}

// OnlinePlayers is the /online-players body
func OnlinePlayers(usernames ...string) map[string]interface{} {
	players := make([]interface{}, 0, len(usernames))
	for _, name := range usernames {
		players = append(players, OnlinePlayer(name))
	}
	return map[string]interface{}{
		"count":   len(players),
		"players": players,
	}
}

// SecurityInfo is the /security/info body
func SecurityInfo() map[string]interface{} {
	return map[string]interface{}{
		"securityEnabled": true,
		"totalApiKeys":    2,
		"activeApiKeys":   1,
		"allowedIPs":      0,
		"apiKeys": []interface{}{
			map[string]interface{}{
				"name":        "admin",
				"description": "default key",
				"created":     "2024-01-01T00:00:00",
				"active":      true,
				"lastUsed":    "从未使用",
			},
		},
	}
}

// Location is a location object
func Location() map[string]interface{} {
	return map[string]interface{}{
		"x": 12.5, "y": 64.0, "z": -30.25,
		"world": "world",
		"yaw":   90.0, "pitch": 0.0,
	}
}

// UserProfile is the /user/info body of an online player
func UserProfile(username string) map[string]interface{} {
	return map[string]interface{}{
		"username":    username,
		"uuid":        "069a79f4-44e9-4726-a5be-fca90e38aaf5",
		"displayName": username,
		"level":       30,
		"exp":         0.5,
		"expToLevel":  112,
		"location":    Location(),
		"inventory": []interface{}{
			map[string]interface{}{
				"slot": 0, "slotType": "main", "type": "DIAMOND_SWORD",
				"amount": 1, "displayName": "Excalibur",
				"durability": 12, "maxDurability": 1561,
				"enchantments": []interface{}{
					map[string]interface{}{"name": "sharpness", "level": 5},
				},
				"lore": []interface{}{"legendary"},
			},
		},
		"health":                   20.0,
		"maxHealth":                20.0,
		"foodLevel":                18,
		"gameMode":                 "SURVIVAL",
		"online":                   true,
		"currentSessionOnlineTime": 120,
		"totalOnlineTime":          3600,
	}
}

// LevelInfo is the /user/level body
func LevelInfo(username string) map[string]interface{} {
	return map[string]interface{}{
		"username":        username,
		"level":           30,
		"exp":             0.5,
		"expToLevel":      112,
		"totalExperience": 1395,
		"online":          false,
		"firstPlayed":     1700000000000,
		"lastPlayed":      1710000000000,
		"isOnline":        false,
		"totalOnlineTime": 3600,
	}
}

// LoginRecords is the /user/login-records body
func LoginRecords(username string) map[string]interface{} {
	return map[string]interface{}{
		"username": username,
		"records": []interface{}{
			map[string]interface{}{
				"username":   username,
				"playerId":   "069a79f4-44e9-4726-a5be-fca90e38aaf5",
				"ipAddress":  "127.0.0.1",
				"loginTime":  "2024-05-01 10:00:00",
				"logoutTime": "2024-05-01 11:00:00",
				"onlineTime": 3600,
			},
		},
		"totalRecords": 1,
	}
}

// BatchResults is the /user/batch body with every lookup successful
func BatchResults(queryType string, usernames ...string) map[string]interface{} {
	results := make([]interface{}, 0, len(usernames))
	for _, name := range usernames {
		results = append(results, map[string]interface{}{
			"username": name,
			"success":  true,
			"data":     UserProfile(name),
		})
	}
	return map[string]interface{}{
		"results":   results,
		"total":     len(results),
		"queryType": queryType,
	}
}
