// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DateFormatRelative selects humanized timestamps ("3 minutes ago") instead
// of a fixed layout.
const DateFormatRelative = "relative"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr          string
	DBPath              string
	CommentsReadOnly    bool
	EnableRemove        bool
	DateFormat          string // DateFormatRelative or a Go time layout.
	VerticalOffset      int
	CommentIndentOffset int
	AdminUsers          []string
	RenderMode          string // "inline" or "diff".
}

// RelativeDates reports whether timestamps should be humanized.
func (c *Config) RelativeDates() bool {
	return c.DateFormat == DateFormatRelative
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional:
// DELPHI_LISTEN_ADDR (127.0.0.1:8080), DELPHI_DB_PATH (delphi.db),
// DELPHI_COMMENTS_READONLY (false), DELPHI_ENABLE_REMOVE (true),
// DELPHI_DATE_FORMAT (06-01-02 15:04), DELPHI_VERTICAL_OFFSET (5),
// DELPHI_COMMENT_INDENT_OFFSET (10), DELPHI_ADMIN_USERS (none),
// DELPHI_RENDER_MODE (inline).
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("DELPHI_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "delphi.db"
	if v, ok := os.LookupEnv("DELPHI_DB_PATH"); ok {
		dbPath = v
	}

	readOnly, err := lookupBool("DELPHI_COMMENTS_READONLY", false)
	if err != nil {
		return nil, err
	}

	enableRemove, err := lookupBool("DELPHI_ENABLE_REMOVE", true)
	if err != nil {
		return nil, err
	}

	dateFormat := "06-01-02 15:04"
	if v, ok := os.LookupEnv("DELPHI_DATE_FORMAT"); ok {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("DELPHI_DATE_FORMAT must not be empty")
		}
		dateFormat = v
	}

	verticalOffset, err := lookupNonNegativeInt("DELPHI_VERTICAL_OFFSET", 5)
	if err != nil {
		return nil, err
	}

	indentOffset, err := lookupNonNegativeInt("DELPHI_COMMENT_INDENT_OFFSET", 10)
	if err != nil {
		return nil, err
	}

	var admins []string
	if v, ok := os.LookupEnv("DELPHI_ADMIN_USERS"); ok && v != "" {
		for _, user := range strings.Split(v, ",") {
			user = strings.TrimSpace(user)
			if user != "" {
				admins = append(admins, user)
			}
		}
	}
	if admins == nil {
		admins = []string{}
	}

	renderMode := "inline"
	if v, ok := os.LookupEnv("DELPHI_RENDER_MODE"); ok {
		switch v {
		case "inline", "diff":
			renderMode = v
		default:
			return nil, fmt.Errorf("DELPHI_RENDER_MODE must be inline or diff, got %q", v)
		}
	}

	return &Config{
		ListenAddr:          listenAddr,
		DBPath:              dbPath,
		CommentsReadOnly:    readOnly,
		EnableRemove:        enableRemove,
		DateFormat:          dateFormat,
		VerticalOffset:      verticalOffset,
		CommentIndentOffset: indentOffset,
		AdminUsers:          admins,
		RenderMode:          renderMode,
	}, nil
}

func lookupBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return parsed, nil
}

func lookupNonNegativeInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", key, parsed)
	}
	return parsed, nil
}
