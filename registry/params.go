package registry

import (
	"fmt"
	"net/url"

	"github.com/go-sql-driver/mysql"

	"github.com/astreltsov/db-mcp-server/dberr"
)

// Params holds backend connection parameters. Which fields are required
// depends on the backend kind; ConnString overrides everything when set.
type Params struct {
	Host       string `yaml:"host,omitempty" json:"host,omitempty"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty"`
	Database   string `yaml:"database,omitempty" json:"database,omitempty"`
	User       string `yaml:"user,omitempty" json:"user,omitempty"`
	Password   string `yaml:"password,omitempty" json:"password,omitempty"`
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	ConnString string `yaml:"connection_string,omitempty" json:"connection_string,omitempty"`
}

// DSN builds the driver connection string for the given backend kind.
func (p Params) DSN(kind string) (string, error) {
	if p.ConnString != "" {
		return p.ConnString, nil
	}

	switch kind {
	case "sqlite":
		if p.Path == "" {
			return "", dberr.New(dberr.InvalidParams, "sqlite connection requires a path")
		}
		return p.Path, nil

	case "postgres":
		if p.Host == "" || p.Database == "" {
			return "", dberr.New(dberr.InvalidParams, "postgres connection requires host and database")
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   fmt.Sprintf("%s:%d", p.Host, portOrDefault(p.Port, 5432)),
			Path:   "/" + p.Database,
		}
		if p.User != "" {
			u.User = url.UserPassword(p.User, p.Password)
		}
		return u.String(), nil

	case "mysql":
		if p.Host == "" || p.Database == "" {
			return "", dberr.New(dberr.InvalidParams, "mysql connection requires host and database")
		}
		cfg := mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", p.Host, portOrDefault(p.Port, 3306))
		cfg.DBName = p.Database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil

	case "mssql":
		if p.Host == "" || p.Database == "" {
			return "", dberr.New(dberr.InvalidParams, "mssql connection requires host and database")
		}
		u := url.URL{
			Scheme:   "sqlserver",
			Host:     fmt.Sprintf("%s:%d", p.Host, portOrDefault(p.Port, 1433)),
			RawQuery: url.Values{"database": {p.Database}}.Encode(),
		}
		if p.User != "" {
			u.User = url.UserPassword(p.User, p.Password)
		}
		return u.String(), nil

	default:
		return "", dberr.New(dberr.InvalidParams, "unsupported backend kind %q", kind)
	}
}

// Masked returns the parameters with secrets redacted, for list_connections.
func (p Params) Masked() map[string]any {
	masked := map[string]any{}
	if p.Host != "" {
		masked["host"] = p.Host
	}
	if p.Port != 0 {
		masked["port"] = p.Port
	}
	if p.Database != "" {
		masked["database"] = p.Database
	}
	if p.User != "" {
		masked["user"] = p.User
	}
	if p.Password != "" {
		masked["password"] = "********"
	}
	if p.Path != "" {
		masked["path"] = p.Path
	}
	if p.ConnString != "" {
		// A DSN can embed credentials; never echo it back.
		masked["connection_string"] = "********"
	}
	return masked
}

func portOrDefault(port, fallback int) int {
	if port > 0 {
		return port
	}
	return fallback
}
