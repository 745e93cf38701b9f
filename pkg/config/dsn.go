package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const defaultPostgresPort = 5432

// databaseURL is a postgres:// connection URL split into libpq keywords.
type databaseURL struct {
	host     string
	port     int
	user     string
	password string
	dbname   string
	sslMode  string
	// options holds every other query parameter, e.g. connect_timeout.
	options map[string]string
}

func parseDatabaseURL(raw string) (*databaseURL, error) {
	if raw == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return nil, fmt.Errorf("database url scheme %q is not postgres", u.Scheme)
	}

	p := &databaseURL{
		host:    u.Hostname(),
		port:    defaultPostgresPort,
		dbname:  strings.TrimPrefix(u.Path, "/"),
		sslMode: "disable",
		options: make(map[string]string),
	}
	if port := u.Port(); port != "" {
		if p.port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("database url port %q: %w", port, err)
		}
	}
	if u.User != nil {
		p.user = u.User.Username()
		p.password, _ = u.User.Password()
	}

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		if key == "sslmode" {
			p.sslMode = values[0]
			continue
		}
		p.options[key] = values[0]
	}
	return p, nil
}

// dsn renders a libpq keyword/value string. Extra options follow in key order.
func (p *databaseURL) dsn() string {
	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.host, p.port, p.user, p.password, p.dbname, p.sslMode)

	keys := make([]string, 0, len(p.options))
	for k := range p.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, p.options[k])
	}
	return b.String()
}
