package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/db"
	log "github.com/sirupsen/logrus"
)

// databaseInfo describes a DSN for logs without its password.
type databaseInfo struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

func (d databaseInfo) fields() log.Fields {
	if d.Type == "sqlite" {
		return log.Fields{"type": d.Type, "path": d.Path}
	}
	return log.Fields{
		"type":     d.Type,
		"host":     d.Host,
		"port":     d.Port,
		"user":     d.User,
		"database": d.Name,
		"sslmode":  d.SSLMode,
	}
}

func describeDatabase(dsn string) (databaseInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return databaseInfo{}, fmt.Errorf("empty dsn")
	}

	if !db.IsPostgresDSN(trimmed) {
		pathPart := trimmed
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return databaseInfo{
			Type: "sqlite",
			Path: strings.TrimSpace(pathPart),
		}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return databaseInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	port := 5432
	if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
		parsedPort, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return databaseInfo{}, fmt.Errorf("parse port: %w", errPort)
		}
		port = parsedPort
	}

	username := ""
	passwordSet := false
	if u.User != nil {
		username = strings.TrimSpace(u.User.Username())
		_, passwordSet = u.User.Password()
	}

	sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
	if sslMode == "" {
		sslMode = "disable"
	}

	return databaseInfo{
		Type:        "postgres",
		Host:        strings.TrimSpace(u.Hostname()),
		Port:        port,
		User:        username,
		Name:        strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
		SSLMode:     sslMode,
		PasswordSet: passwordSet,
	}, nil
}
